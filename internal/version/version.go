// Package version はビルドバージョン情報を保持する。
package version

// Version はrssdのバージョン文字列。
// versionコマンドの応答とHTTPのUser-Agentヘッダで使用される。
const Version = "0.4.2"
