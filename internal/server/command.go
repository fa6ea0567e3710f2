// Package server はUnixドメインソケット上の制御チャネルを提供する。
package server

import (
	"strings"

	"github.com/hitoshi/rssd/internal/model"
)

// CommandKind は制御コマンドの種別。
type CommandKind int

const (
	// CmdPing は疎通確認。
	CmdPing CommandKind = iota
	// CmdVersion はバージョン照会。
	CmdVersion
	// CmdFeedAdd はフィードの追加。
	CmdFeedAdd
	// CmdFeedRemove はフィードの削除。
	CmdFeedRemove
	// CmdFeedList は監視中フィードの一覧。
	CmdFeedList
)

// Keyword はメトリクスとログで使用するコマンドの表示名を返す。
func (k CommandKind) Keyword() string {
	switch k {
	case CmdPing:
		return "ping"
	case CmdVersion:
		return "version"
	case CmdFeedAdd:
		return "feed add"
	case CmdFeedRemove:
		return "feed remove"
	case CmdFeedList:
		return "feed list"
	default:
		return "unknown"
	}
}

// Command はパース済みの制御コマンド。
type Command struct {
	Kind CommandKind
	// URL はCmdFeedAdd/CmdFeedRemoveの対象URL。
	URL string
}

// ParseCommand は1行の制御コマンドをパースする。
// 失敗時は4種類のProtocolErrorのいずれかを返し、そのエラーメッセージが
// そのままERR応答の本文となる。
//
// 文法:
//
//	ping
//	version
//	feed add <url>
//	feed remove <url>
//	feed list
func ParseCommand(line string) (Command, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return Command{}, model.NewProtocolError(model.ProtocolErrMissingKeyword)
	}

	switch tokens[0] {
	case "ping":
		return Command{Kind: CmdPing}, nil

	case "version":
		return Command{Kind: CmdVersion}, nil

	case "feed":
		if len(tokens) < 2 {
			return Command{}, model.NewProtocolError(model.ProtocolErrTooFewTokens)
		}
		switch tokens[1] {
		case "add":
			if len(tokens) < 3 {
				return Command{}, model.NewProtocolError(model.ProtocolErrMissingURL)
			}
			return Command{Kind: CmdFeedAdd, URL: tokens[2]}, nil
		case "remove":
			if len(tokens) < 3 {
				return Command{}, model.NewProtocolError(model.ProtocolErrMissingURL)
			}
			return Command{Kind: CmdFeedRemove, URL: tokens[2]}, nil
		case "list":
			return Command{Kind: CmdFeedList}, nil
		default:
			return Command{}, model.NewProtocolError(model.ProtocolErrUnknownKeyword)
		}

	default:
		return Command{}, model.NewProtocolError(model.ProtocolErrMissingKeyword)
	}
}
