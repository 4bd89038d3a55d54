package functions

import (
	"net/http"
	"time"

	response "actionflow/api/handlers/common"
	"actionflow/internal/invocation"
	"actionflow/internal/tools"
)

type parameterDTO struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	InstanceOf string `json:"instanceOf,omitempty"`
}

type functionDTO struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	Path                 string         `json:"path"`
	ReturnType           string         `json:"returnType"`
	ReturnTypeInstanceOf string         `json:"returnTypeInstanceOf,omitempty"`
	Parameters           []parameterDTO `json:"parameters"`
}

type conversionDTO struct {
	InputTypes []string `json:"inputTypes"`
	OutputType string   `json:"outputType"`
	FunctionID string   `json:"functionId"`
}

type parameterValue struct {
	Type  string `json:"type" binding:"required"`
	Value any    `json:"value"`
}

type invokeRequest struct {
	Parameters map[string]parameterValue `json:"parameters" binding:"dive"`
}

type invocationDTO struct {
	ID         string         `json:"id"`
	FunctionID string         `json:"functionId"`
	State      string         `json:"state"`
	Stage      string         `json:"stage,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"startedAt"`
	Duration   int64          `json:"duration,omitempty"` // 毫秒
}

func toFunctionDTO(d *tools.ActionFunctionDescriptor) functionDTO {
	params := d.Parameters()
	out := functionDTO{
		ID:                   d.ID(),
		Name:                 d.Name(),
		Path:                 d.Path(),
		ReturnType:           d.ReturnType().Type,
		ReturnTypeInstanceOf: d.ReturnType().InstanceOf,
		Parameters:           make([]parameterDTO, 0, len(params)),
	}
	for _, p := range params {
		out.Parameters = append(out.Parameters, parameterDTO{Name: p.Name, Type: p.Type, InstanceOf: p.InstanceOf})
	}
	return out
}

func fromPending(p *invocation.Pending) invocationDTO {
	dto := invocationDTO{
		ID:         p.ID(),
		FunctionID: p.FunctionID(),
		State:      string(p.State()),
		Stage:      string(p.Stage()),
		StartedAt:  p.StartedAt(),
	}
	if p.State().Terminal() {
		result, err := p.Result()
		dto.Result = result
		if err != nil {
			dto.Error = err.Error()
		}
		dto.Duration = p.Duration().Milliseconds()
	}
	return dto
}

// statusFromStage 解析阶段失败为 422，执行阶段失败为 502
func statusFromStage(stage invocation.Stage, err error) (int, string) {
	switch stage {
	case invocation.StageResolution:
		return http.StatusUnprocessableEntity, response.CodeResolution
	case invocation.StageExecution:
		return http.StatusBadGateway, response.CodeRemote
	default:
		return response.StatusFromError(err)
	}
}
