package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/rssd/internal/model"
)

// connTimeout は1接続の読み書きの期限。
const connTimeout = 30 * time.Second

// Request はパース済みコマンドと応答チャネルの組。
// DispatcherがReplyに応答行（末尾改行なし）を1つ書き込む。
type Request struct {
	// ID は接続ごとの相関ID。ログで使用する。
	ID      string
	Command Command
	Reply   chan string
}

// IPCServer はUnixドメインソケット上でライン型プロトコルを受け付ける。
// 1接続につき1コマンドを読み取り、パース済みのRequestをDispatcherへ
// 引き渡す。パース失敗はDispatcherを経由せずその場でERR応答を返す。
type IPCServer struct {
	socketPath string
	listener   net.Listener
	logger     *slog.Logger
	requests   chan Request
	wg         sync.WaitGroup
}

// NewIPCServer はIPCServerの新しいインスタンスを生成する。
func NewIPCServer(socketPath string, logger *slog.Logger) *IPCServer {
	return &IPCServer{
		socketPath: socketPath,
		logger:     logger,
		requests:   make(chan Request),
	}
}

// Listen はソケットファイルを作成して待ち受けを開始する。
// 前回の異常終了で残ったソケットファイルは削除してから作成する。
func (s *IPCServer) Listen() error {
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("既存ソケットファイルの削除に失敗しました: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("ソケットの待ち受けに失敗しました: %w", err)
	}

	s.listener = listener
	s.logger.Info("制御ソケットの待ち受けを開始します",
		slog.String("socket", s.socketPath),
	)
	return nil
}

// Requests はDispatcherが消費するリクエストチャネルを返す。
// Serveの終了時にクローズされる。
func (s *IPCServer) Requests() <-chan Request {
	return s.requests
}

// Serve は接続の受け付けループを実行する。ctxのキャンセルで
// リスナーを閉じ、処理中の接続の完了を待ってから戻る。
func (s *IPCServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				close(s.requests)
				s.logger.Info("制御ソケットの待ち受けを終了します")
				return nil
			}
			s.logger.Warn("接続の受け付けに失敗しました",
				slog.String("error", err.Error()),
			)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Close はソケットファイルを削除する。Serveの終了後に呼び出す。
func (s *IPCServer) Close() {
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("ソケットファイルの削除に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// handleConn は1接続を処理する。1行読み取り・パース・応答書き込みを行う。
func (s *IPCServer) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	id := uuid.NewString()
	conn.SetDeadline(time.Now().Add(connTimeout))

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		s.logger.Warn("コマンドの読み取りに失敗しました",
			slog.String("request_id", id),
			slog.String("error", err.Error()),
		)
		return
	}

	cmd, parseErr := ParseCommand(line)
	if parseErr != nil {
		var protoErr *model.ProtocolError
		if !errors.As(parseErr, &protoErr) {
			// ParseCommandはProtocolErrorのみを返す
			s.writeReply(conn, id, "ERR "+parseErr.Error())
			return
		}
		s.logger.Warn("不正なコマンドを受信しました",
			slog.String("request_id", id),
			slog.String("error", protoErr.Error()),
		)
		s.writeReply(conn, id, "ERR "+protoErr.Error())
		return
	}

	s.logger.Info("コマンドを受信しました",
		slog.String("request_id", id),
		slog.String("keyword", cmd.Kind.Keyword()),
		slog.String("url", cmd.URL),
	)

	req := Request{
		ID:      id,
		Command: cmd,
		Reply:   make(chan string, 1),
	}

	select {
	case s.requests <- req:
	case <-ctx.Done():
		s.writeReply(conn, id, "ERR daemon is shutting down")
		return
	}

	select {
	case reply := <-req.Reply:
		s.writeReply(conn, id, reply)
	case <-ctx.Done():
		s.writeReply(conn, id, "ERR daemon is shutting down")
	}
}

// writeReply は応答行を書き込む。失敗はログに記録するのみ。
func (s *IPCServer) writeReply(conn net.Conn, id, reply string) {
	if _, err := conn.Write([]byte(reply + "\n")); err != nil {
		s.logger.Warn("応答の書き込みに失敗しました",
			slog.String("request_id", id),
			slog.String("error", err.Error()),
		)
	}
}
