package model

import "fmt"

// FetchErrorKind はフィード取得エラーの分類を表す。
type FetchErrorKind string

const (
	// FetchErrorNetwork はHTTP転送レベルの失敗。
	FetchErrorNetwork FetchErrorKind = "network"
	// FetchErrorParse はフィード文書の解析失敗。
	FetchErrorParse FetchErrorKind = "parse"
)

// FetchError はフィード取得の失敗を表す。
// フィード単位のエラーであり、プロセス全体には波及しない。
type FetchError struct {
	Kind FetchErrorKind
	URL  string
	Err  error
}

// Error はerrorインターフェースを実装する。
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.URL, e.Kind, e.Err)
}

// Unwrap は原因エラーを返す。
func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewNetworkError は転送レベルのFetchErrorを生成する。
func NewNetworkError(url string, err error) *FetchError {
	return &FetchError{Kind: FetchErrorNetwork, URL: url, Err: err}
}

// NewParseError は解析レベルのFetchErrorを生成する。
func NewParseError(url string, err error) *FetchError {
	return &FetchError{Kind: FetchErrorParse, URL: url, Err: err}
}

// ProtocolErrorKind はコマンド解析エラーの分類を表す。
// 4種類はテストで個別に識別できなければならない。
type ProtocolErrorKind string

const (
	// ProtocolErrMissingKeyword は先頭トークンが既知のコマンドでない場合。
	ProtocolErrMissingKeyword ProtocolErrorKind = "missing_keyword"
	// ProtocolErrUnknownKeyword はサブコマンドが未知の場合。
	ProtocolErrUnknownKeyword ProtocolErrorKind = "unknown_keyword"
	// ProtocolErrTooFewTokens はトークンが不足している場合。
	ProtocolErrTooFewTokens ProtocolErrorKind = "too_few_tokens"
	// ProtocolErrMissingURL はURL引数が欠けている場合。
	ProtocolErrMissingURL ProtocolErrorKind = "missing_url"
)

// ProtocolError は不正なクライアントコマンドを表す。
// 送信元のコネクションにのみ返され、Engineへは到達しない。
type ProtocolError struct {
	Kind ProtocolErrorKind
}

// Error はerrorインターフェースを実装する。
// クライアントへのERR応答本文としてそのまま使われる。
func (e *ProtocolError) Error() string {
	switch e.Kind {
	case ProtocolErrMissingKeyword:
		return "Missing keyword"
	case ProtocolErrUnknownKeyword:
		return "Unknown keyword"
	case ProtocolErrTooFewTokens:
		return "Too few tokens"
	case ProtocolErrMissingURL:
		return "Missing URL argument"
	default:
		return "Invalid command"
	}
}

// NewProtocolError は指定分類のProtocolErrorを生成する。
func NewProtocolError(kind ProtocolErrorKind) *ProtocolError {
	return &ProtocolError{Kind: kind}
}
