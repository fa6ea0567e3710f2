// Package feed はフィードの取得・解析を行うソースクライアントを提供する。
package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/rssd/internal/model"
	"github.com/hitoshi/rssd/internal/version"
)

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// Sanitizer はHTMLサニタイズのインターフェース。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// Client は1つのフィードURLの取得とパースを行うソースクライアント。
// リトライは行わない。失敗時のバックオフはPoller側の責務。
type Client struct {
	httpClient  *http.Client
	guard       SSRFValidator
	sanitizer   Sanitizer
	limiter     *HostLimiter
	logger      *slog.Logger
	maxBodySize int64
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(
	guard SSRFValidator,
	sanitizer Sanitizer,
	limiter *HostLimiter,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
) *Client {
	return &Client{
		httpClient:  guard.NewSafeClient(timeout),
		guard:       guard,
		sanitizer:   sanitizer,
		limiter:     limiter,
		logger:      logger,
		maxBodySize: maxBodySize,
	}
}

// Fetch はフィード文書を1回取得し、正規化した記事リストを返す。
// 転送失敗はFetchError{network}、解析失敗はFetchError{parse}を返す。
// 部分的な結果を返すことはない。
func (c *Client) Fetch(ctx context.Context, feedURL string) ([]model.FeedItem, error) {
	body, err := c.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, model.NewParseError(feedURL, err)
	}

	return c.convertItems(feedURL, parsed), nil
}

// Resolve はフィードURLを1回検証して正規のフィードURLを返す。
// 直接フィードとして解析できない場合、HTMLページであれば
// <link rel="alternate"> によるフィード自動検出を試みる。
func (c *Client) Resolve(ctx context.Context, rawURL string) (string, error) {
	body, err := c.get(ctx, rawURL)
	if err != nil {
		return "", err
	}

	if _, err := gofeed.NewParser().ParseString(string(body)); err == nil {
		return rawURL, nil
	}

	// フィードとして解析できなかった: HTMLからの自動検出を試みる
	base, parseErr := url.Parse(rawURL)
	if parseErr != nil {
		return "", model.NewParseError(rawURL, parseErr)
	}

	candidate, ok := DiscoverFeedURL(body, base)
	if !ok {
		return "", model.NewParseError(rawURL, fmt.Errorf("document is neither a feed nor a page with a feed link"))
	}

	c.logger.Debug("HTMLページからフィードを自動検出しました",
		slog.String("page_url", rawURL),
		slog.String("feed_url", candidate),
	)

	candidateBody, err := c.get(ctx, candidate)
	if err != nil {
		return "", err
	}
	if _, err := gofeed.NewParser().ParseString(string(candidateBody)); err != nil {
		return "", model.NewParseError(candidate, err)
	}

	return candidate, nil
}

// get はURLの事前検証・ホスト別レート制限・HTTP取得を行い、
// レスポンスボディをサイズ上限付きで読み込む。
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.guard.ValidateURL(rawURL); err != nil {
		return nil, model.NewNetworkError(rawURL, err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rawURL); err != nil {
			return nil, model.NewNetworkError(rawURL, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, model.NewNetworkError(rawURL, err)
	}

	req.Header.Set("User-Agent", "rssd/"+version.Version+" RSS Watcher")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.NewNetworkError(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewNetworkError(rawURL, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, model.NewNetworkError(rawURL, err)
	}

	return body, nil
}

// convertItems はgofeedの記事をmodel.FeedItemに変換する。
// description/contentはサニタイズし、公開日時がない記事には
// 取り込み時刻を設定する。
func (c *Client) convertItems(feedURL string, parsed *gofeed.Feed) []model.FeedItem {
	now := time.Now()
	items := make([]model.FeedItem, 0, len(parsed.Items))

	for _, item := range parsed.Items {
		if item == nil {
			continue
		}

		converted := model.FeedItem{
			Title:       item.Title,
			Link:        item.Link,
			Description: c.sanitizer.Sanitize(item.Description),
			Categories:  item.Categories,
			GUID:        item.GUID,
			SourceTitle: parsed.Title,
			SourceURL:   feedURL,
			Content:     c.sanitizer.Sanitize(item.Content),
		}

		// 著者情報
		if item.Author != nil {
			converted.Author = item.Author.Name
		}
		if converted.Author == "" && len(item.Authors) > 0 && item.Authors[0] != nil {
			converted.Author = item.Authors[0].Name
		}

		// 公開日時: フィードに無い場合は取り込み時刻を使用
		switch {
		case item.PublishedParsed != nil:
			converted.PubDate = *item.PublishedParsed
		case item.UpdatedParsed != nil:
			converted.PubDate = *item.UpdatedParsed
		default:
			converted.PubDate = now
		}

		// Contentが空の場合はDescriptionを使用
		if converted.Content == "" && converted.Description != "" {
			converted.Content = converted.Description
		}

		// LinkがなくGUIDがURL形式の場合はGUIDをLinkとして使用
		if converted.Link == "" && converted.GUID != "" &&
			(strings.HasPrefix(converted.GUID, "http://") || strings.HasPrefix(converted.GUID, "https://")) {
			converted.Link = converted.GUID
		}

		items = append(items, converted)
	}

	return items
}
