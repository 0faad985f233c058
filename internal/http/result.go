package httpapi

// Result 与前端轮询客户端约定的响应包裹
// - status: 'success' | 'error'
// - message: 出错原因（成功时可为空）
// - data: 负载
type Result[T any] struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

func Ok[T any](data T) Result[T] {
	return Result[T]{Status: StatusSuccess, Data: data}
}

func OkMessage(message string) Result[any] {
	return Result[any]{Status: StatusSuccess, Message: message}
}

func Fail(message string) Result[any] {
	return Result[any]{Status: StatusError, Message: message}
}
