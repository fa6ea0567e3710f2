package feed

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// feedMIMETypes は自動検出の対象とするフィードのMIMEタイプ。
var feedMIMETypes = map[string]bool{
	"application/rss+xml":  true,
	"application/atom+xml": true,
	"application/feed+json": true,
}

// DiscoverFeedURL はHTMLドキュメントから <link rel="alternate"> による
// フィードURLの自動検出を行う。最初に見つかったフィードリンクを
// ベースURLで絶対URLに解決して返す。見つからない場合はfalseを返す。
// 不正なHTMLでもパース可能な範囲で処理する（html.Parseは失敗しない）。
func DiscoverFeedURL(body []byte, base *url.URL) (string, bool) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", false
	}

	var found string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "link" {
			if href, ok := feedLinkHref(n); ok {
				found = href
				return true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(doc)

	if found == "" {
		return "", false
	}

	ref, err := url.Parse(found)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}

// feedLinkHref はlink要素がフィードへの参照であればhref属性値を返す。
func feedLinkHref(n *html.Node) (string, bool) {
	var rel, typ, href string
	for _, attr := range n.Attr {
		switch strings.ToLower(attr.Key) {
		case "rel":
			rel = strings.ToLower(attr.Val)
		case "type":
			typ = strings.ToLower(strings.TrimSpace(attr.Val))
		case "href":
			href = attr.Val
		}
	}
	if rel != "alternate" || href == "" {
		return "", false
	}
	if !feedMIMETypes[typ] {
		return "", false
	}
	return href, true
}
