package service

import "errors"

// 服務層的錯誤分類
// handlers 依 errors.Is 轉換為對應的 HTTP 狀態碼
var (
	// ErrRoomNotFound 找不到房間，屬於終止性錯誤，直接回報給呼叫端
	ErrRoomNotFound = errors.New("找不到房間")

	// ErrRoomEnded 房間已結束，不能再加入（房間狀態不會倒退）
	ErrRoomEnded = errors.New("房間已結束")

	// ErrNotAuthorized 呼叫端沒有權限執行此操作
	ErrNotAuthorized = errors.New("沒有權限執行此操作")

	// ErrParticipantNotFound 找不到成員記錄
	ErrParticipantNotFound = errors.New("找不到成員")

	// ErrParticipantDenied 成員已被拒絕進入，屬於終止狀態
	ErrParticipantDenied = errors.New("已被拒絕進入房間")

	// ErrAdapterUnavailable 儲存層或匯流排暫時無法使用
	// 直接往上傳遞，不在這一層重試，也絕不吞掉
	ErrAdapterUnavailable = errors.New("儲存服務暫時無法使用")

	// ErrDuplicateActiveParticipant 同一身分在房間內出現多筆在線記錄
	// 只要房間操作有正確序列化就不應該發生，視為程式錯誤而非可重試狀況
	ErrDuplicateActiveParticipant = errors.New("同一身分在房間內重複在線")
)
