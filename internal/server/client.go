package server

import (
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// Send は制御ソケットへコマンドを1行送信し、応答を読み取って返す。
// sendサブコマンドから使用されるワンショットのクライアント。
func Send(socketPath, command string, timeout time.Duration) (string, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return "", fmt.Errorf("制御ソケットへの接続に失敗しました: %w", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(timeout))

	if _, err := conn.Write([]byte(command + "\n")); err != nil {
		return "", fmt.Errorf("コマンドの送信に失敗しました: %w", err)
	}

	// サーバーは応答を書き込んだ後に接続を閉じる
	reply, err := io.ReadAll(conn)
	if err != nil {
		return "", fmt.Errorf("応答の読み取りに失敗しました: %w", err)
	}

	return strings.TrimRight(string(reply), "\n"), nil
}
