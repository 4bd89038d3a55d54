package panels

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"actionflow/internal/activity"
	"actionflow/internal/middleware"
	"actionflow/internal/panel"
	"actionflow/internal/tools"
	"actionflow/internal/worker/tasks"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const activityJSON = `{
  "id": "emf-demo",
  "panels": [
    {"id": "emfatic", "ref": "emfatic-def", "value": "class A {}"},
    {"id": "console", "ref": "console-def"}
  ],
  "actions": [
    {"source": "emfatic", "sourceButton": "to-ecore", "parameters": {"emfatic": "emfatic"}, "output": "console"}
  ]
}`

type fakeQueue struct {
	payloads []tasks.RunActionPayload
}

func (f *fakeQueue) EnqueueRunAction(_ context.Context, p tasks.RunActionPayload) (string, error) {
	f.payloads = append(f.payloads, p)
	return "task-1", nil
}

func (f *fakeQueue) Close() error { return nil }

type runRecorder struct {
	panelID, buttonID string
}

func setupHandler(t *testing.T, q *fakeQueue) (*gin.Engine, *runRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog := tools.NewCatalog()
	catalog.PanelDefs["emfatic-def"] = tools.PanelDef{
		ID: "emfatic-def", Name: "Emfatic", PanelClass: "ProgramPanel", Language: "emfatic", Type: "emfatic",
		Buttons: []tools.ButtonDef{{ID: "to-ecore", ActionFunction: "emfatic2ecore"}},
	}
	catalog.PanelDefs["console-def"] = tools.PanelDef{ID: "console-def", Name: "Console", PanelClass: "ConsolePanel"}

	cfg, err := activity.Parse([]byte(activityJSON), ".json")
	require.NoError(t, err)
	act, err := activity.Build(cfg, catalog, nil)
	require.NoError(t, err)

	manager := panel.NewManager(nil, nil)
	for _, p := range act.Panels() {
		require.NoError(t, manager.Add(context.Background(), p))
	}

	rec := &runRecorder{}
	act.Bind(func(_ context.Context, panelID, buttonID string) (string, error) {
		rec.panelID, rec.buttonID = panelID, buttonID
		return "inv-1", nil
	})

	var h *PanelHandler
	if q != nil {
		h = NewPanelHandler(manager, act, q)
	} else {
		h = NewPanelHandler(manager, act, nil)
	}

	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	router.GET("/api/panels", h.ListPanels)
	router.GET("/api/panels/:id", h.GetPanel)
	router.PUT("/api/panels/:id", h.UpdatePanel)
	router.POST("/api/panels/:id/save", h.SavePanel)
	router.POST("/api/panels/:id/buttons/:button/run", h.RunButton)
	return router, rec
}

func doRequest(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var data []byte
	if body != nil {
		data, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func TestGetPanel(t *testing.T) {
	router, _ := setupHandler(t, nil)

	w := doRequest(router, http.MethodGet, "/api/panels/emfatic", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var dto panelDTO
	decodeData(t, w, &dto)
	assert.Equal(t, "class A {}", dto.Value)
	assert.Equal(t, "emfatic", dto.Type)
	assert.True(t, dto.Editable)
	require.Len(t, dto.Buttons, 1)
	assert.Equal(t, "to-ecore", dto.Buttons[0].ID)

	w = doRequest(router, http.MethodGet, "/api/panels", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Count int `json:"count"`
	}
	decodeData(t, w, &list)
	assert.Equal(t, 2, list.Count)

	w = doRequest(router, http.MethodGet, "/api/panels/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdatePanel(t *testing.T) {
	router, _ := setupHandler(t, nil)

	w := doRequest(router, http.MethodPut, "/api/panels/emfatic", map[string]string{"value": "class B {}"})
	require.Equal(t, http.StatusOK, w.Code)
	var dto panelDTO
	decodeData(t, w, &dto)
	assert.Equal(t, "class B {}", dto.Value)
	assert.True(t, dto.Dirty)

	w = doRequest(router, http.MethodPost, "/api/panels/emfatic/save", nil)
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("控制台面板不可编辑", func(t *testing.T) {
		w := doRequest(router, http.MethodPut, "/api/panels/console", map[string]string{"value": "x"})
		assert.Equal(t, http.StatusConflict, w.Code)

		w = doRequest(router, http.MethodPost, "/api/panels/console/save", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("缺少内容", func(t *testing.T) {
		w := doRequest(router, http.MethodPut, "/api/panels/emfatic", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRunButton(t *testing.T) {
	router, rec := setupHandler(t, nil)

	w := doRequest(router, http.MethodPost, "/api/panels/emfatic/buttons/to-ecore/run", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	var data map[string]string
	decodeData(t, w, &data)
	assert.Equal(t, "inv-1", data["invocationId"])
	assert.Equal(t, "emfatic", rec.panelID)
	assert.Equal(t, "to-ecore", rec.buttonID)

	w = doRequest(router, http.MethodPost, "/api/panels/emfatic/buttons/unknown/run", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(router, http.MethodPost, "/api/panels/emfatic/buttons/to-ecore/run?async=true", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRunButtonAsync(t *testing.T) {
	q := &fakeQueue{}
	router, rec := setupHandler(t, q)

	w := doRequest(router, http.MethodPost, "/api/panels/emfatic/buttons/to-ecore/run?async=true", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	var data map[string]string
	decodeData(t, w, &data)
	assert.Equal(t, "task-1", data["taskId"])

	require.Len(t, q.payloads, 1)
	assert.Equal(t, "emfatic", q.payloads[0].PanelID)
	assert.Equal(t, "to-ecore", q.payloads[0].ButtonID)
	assert.NotEmpty(t, q.payloads[0].RequestID)
	assert.Equal(t, w.Header().Get(middleware.HeaderTraceID), q.payloads[0].RequestID)
	assert.Empty(t, rec.panelID)
}
