package core

type ctxKey string

const (
	CtxKeyExecutorId ctxKey = ctxKey("executorId")
	CtxKeyWorkerId   ctxKey = ctxKey("workerId")
)
