package tools

// DescriptorProvider 抽象函数描述查找，便于上层通过接口依赖而非具体实现
type DescriptorProvider interface {
	Get(id string) (*ActionFunctionDescriptor, bool)
	List() []*ActionFunctionDescriptor
}

// FunctionLookup 抽象按类型签名查找转换函数
type FunctionLookup interface {
	LookupFunction(inputTypes []string, outputType string) (string, bool)
}

var (
	_ DescriptorProvider = (*DescriptorSet)(nil)
	_ FunctionLookup     = (*FunctionRegistry)(nil)
	_ RemoteCaller       = (*HTTPCaller)(nil)
)
