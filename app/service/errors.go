package service

import "errors"

// 对外暴露的业务错误。同步错误直接返回给调用方，
// 流水线内部的执行器失败只记录在任务上，不会冒泡
var (
	// ErrUnsupportedLink 链接无法识别或没有任何执行器能处理
	ErrUnsupportedLink = errors.New("不支持的链接类型")
	// ErrInvalidStateTransition 操作与当前状态不符，状态保持不变
	ErrInvalidStateTransition = errors.New("当前状态不允许该操作")
	// ErrTaskNotFound 任务不存在
	ErrTaskNotFound = errors.New("任务不存在")
	// ErrAlreadyAttached 离线任务已绑定过供应商任务ID
	ErrAlreadyAttached = errors.New("离线任务已绑定供应商任务ID")
	// ErrUnknownExecutor 选择的执行器不在候选列表中
	ErrUnknownExecutor = errors.New("未知的执行器")
)
