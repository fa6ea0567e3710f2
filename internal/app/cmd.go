package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandDaemon はデーモンモードで起動することを示す。
	CommandDaemon Command = "daemon"
	// CommandCheck は設定済みフィードの検証のみを実行することを示す。
	CommandCheck Command = "check"
	// CommandSend は稼働中デーモンへの制御コマンド送信を示す。
	CommandSend Command = "send"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandDaemonを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandDaemon
	}

	switch args[0] {
	case "daemon":
		return CommandDaemon
	case "check":
		return CommandCheck
	case "send":
		return CommandSend
	case "migrate":
		return CommandMigrate
	default:
		return CommandDaemon
	}
}
