package conversion

const (
	// Placeholder 调用方未提供的参数在载荷中的取值
	Placeholder = "undefined"
	// LanguageParam 由源面板元数据直接提供、不参与转换的参数名
	LanguageParam = "language"
	// LanguageType language 参数的声明类型
	LanguageType = "text"
)

// 转换种类（用于指标与追踪）
const (
	KindSimple    = "simple"
	KindMetamodel = "metamodel"
)

// ParameterValue 调用方提供的参数值
type ParameterValue struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// ParameterMap 逻辑参数名 -> 参数值
type ParameterMap map[string]ParameterValue

// ResolvedParameter 单个参数解析后的结果
type ResolvedParameter struct {
	Name string `json:"name"`
	Data any    `json:"data"`
}

// Request 一次转换请求
type Request struct {
	Value     any
	FromType  string
	ToType    string
	ParamName string

	// 元模型转换的辅助值
	InstanceValue any
	InstanceType  string
}
