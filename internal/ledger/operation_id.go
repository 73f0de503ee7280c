package ledger

import "strconv"

// OperationID 是账本分配的记录 id；账本不可用时为未跟踪状态。
// 调用方必须把未跟踪理解为"没有审计记录"，而不是操作失败。
type OperationID struct {
	id      int64
	tracked bool
}

// Untracked 表示本次操作没有对应的账本记录。
var Untracked = OperationID{}

// Tracked 包装一个已落库的 id。
func Tracked(id int64) OperationID {
	return OperationID{id: id, tracked: true}
}

// Value 返回 id 以及是否存在。
func (o OperationID) Value() (int64, bool) {
	return o.id, o.tracked
}

// IsTracked 表示是否有对应的账本记录。
func (o OperationID) IsTracked() bool {
	return o.tracked
}

func (o OperationID) String() string {
	if !o.tracked {
		return "untracked"
	}
	return strconv.FormatInt(o.id, 10)
}

// MarshalJSON 输出数字 id，未跟踪时输出 null。
func (o OperationID) MarshalJSON() ([]byte, error) {
	if !o.tracked {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(o.id, 10)), nil
}
