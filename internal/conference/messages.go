package conference

const (
	messageConferenceStarted        = ":microphone2: **会議ミキサーを開始しました。**"
	messageConferenceStartedHint    = "-# 全員が退出すると自動的に終了します。"
	messageTranscriptionStarted     = "-# ボイスチャンネルのチャットに文字起こしが表示されます。"
	messageTranscriptionUnavailable = ":warning: **文字起こしを開始できませんでした。音声のミックスのみ続行します。**"

	messageConferenceStopped = ":pause_button:  **会議ミキサーを終了しました。**"
	messageAttachmentTitle   = ":page_facing_up:  **会議の記録**"
)

const (
	stopReasonParticipantsLeft = "participants_left"
	stopReasonBotRemoved       = "bot_removed"
	stopReasonServerClosed     = "server_closed"
)

func stopReasonDetail(reason string) string {
	switch reason {
	case stopReasonParticipantsLeft:
		return "ボイスチャットに誰もいなくなりました。"
	case stopReasonBotRemoved:
		return "ミキサーボットが退出させられました。"
	case stopReasonServerClosed:
		return "ミキサーサーバーが閉じられました。"
	default:
		return "不明なエラーが発生しました。"
	}
}
