// Package collector gathers reactions, comments and reposts for posts and
// normalizes them into engagement records.
package collector

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sells-group/engager-cli/internal/model"
	"github.com/sells-group/engager-cli/pkg/datagen"
)

const (
	defaultPostDelay      = time.Second
	defaultMaxRepostPages = 50
	defaultRepostsPerPage = 10
	profileURLPrefix      = "https://www.linkedin.com/in/"
)

// Collector fetches engagement records through the Datagen tools.
type Collector struct {
	client         datagen.Client
	postDelay      time.Duration
	maxRepostPages int
}

// Option configures a Collector.
type Option func(*Collector)

// WithPostDelay sets the courtesy pause taken after each post. Zero disables it.
func WithPostDelay(d time.Duration) Option {
	return func(c *Collector) {
		if d >= 0 {
			c.postDelay = d
		}
	}
}

// WithMaxRepostPages caps repost pagination per post.
func WithMaxRepostPages(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.maxRepostPages = n
		}
	}
}

// New creates a Collector.
func New(client datagen.Client, opts ...Option) *Collector {
	c := &Collector{
		client:         client,
		postDelay:      defaultPostDelay,
		maxRepostPages: defaultMaxRepostPages,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type author struct {
	AuthorID               string `json:"authorId"`
	AuthorName             string `json:"authorName"`
	AuthorURL              string `json:"authorUrl"`
	AuthorPublicIdentifier string `json:"authorPublicIdentifier"`
}

// profileURL prefers the URL the API supplied and falls back to building
// one from the public identifier.
func (a author) profileURL() string {
	if a.AuthorURL != "" {
		return a.AuthorURL
	}
	if a.AuthorPublicIdentifier != "" {
		return profileURLPrefix + a.AuthorPublicIdentifier
	}
	return ""
}

func (a author) record(postID string, kind model.EngagementType) model.EngagementRecord {
	return model.EngagementRecord{
		PersonID:       a.AuthorID,
		PersonName:     a.AuthorName,
		ProfileURL:     a.profileURL(),
		EngagementType: kind,
		SourcePostID:   postID,
	}
}

type reactionsResponse struct {
	Reactions []struct {
		Type   string `json:"type"`
		Author author `json:"author"`
	} `json:"reactions"`
}

type commentsResponse struct {
	Comments []struct {
		Text   string `json:"text"`
		Author author `json:"author"`
	} `json:"comments"`
}

type repostsResponse struct {
	Reposts []struct {
		Author author `json:"author"`
	} `json:"reposts"`
	// Metadata is read leniently: totals arrive as ints, floats or strings.
	Metadata json.RawMessage `json:"metadata"`
}

// pageInfo returns the reported total and page size. A total of 0 means
// unknown.
func (r repostsResponse) pageInfo() (total, perPage int) {
	perPage = defaultRepostsPerPage
	if len(r.Metadata) == 0 {
		return 0, perPage
	}
	meta := gjson.ParseBytes(r.Metadata)
	if n := meta.Get("perPage").Int(); n > 0 {
		perPage = int(n)
	}
	if n := meta.Get("total").Int(); n > 0 {
		total = int(n)
	}
	return total, perPage
}

// call runs a tool and decodes its output into v. Any failure is logged and
// reported as false so callers can treat it as "no data".
func (c *Collector) call(ctx context.Context, tool string, args map[string]any, v any, log *zap.Logger) bool {
	raw, err := c.client.ExecuteTool(ctx, tool, args)
	if err != nil {
		log.Warn("collector: tool call failed", zap.String("tool", tool), zap.Error(err))
		return false
	}
	if len(raw) == 0 {
		return true
	}
	if err := json.Unmarshal(raw, v); err != nil {
		log.Warn("collector: malformed tool response", zap.String("tool", tool), zap.Error(err))
		return false
	}
	return true
}

// Reactions returns every reaction on the post. Failures yield no records.
func (c *Collector) Reactions(ctx context.Context, postID string) []model.EngagementRecord {
	log := zap.L().With(zap.String("activity_id", postID), zap.String("kind", "reactions"))

	var resp reactionsResponse
	if !c.call(ctx, datagen.ToolPostReactions, map[string]any{"activity_id": postID}, &resp, log) {
		return nil
	}

	out := make([]model.EngagementRecord, 0, len(resp.Reactions))
	for _, r := range resp.Reactions {
		rec := r.Author.record(postID, model.EngagementReaction)
		rec.ReactionKind = r.Type
		out = append(out, rec)
	}
	return out
}

// Comments returns the post's comments. The tool paginates internally.
func (c *Collector) Comments(ctx context.Context, postID string) []model.EngagementRecord {
	log := zap.L().With(zap.String("activity_id", postID), zap.String("kind", "comments"))

	var resp commentsResponse
	if !c.call(ctx, datagen.ToolPostComments, map[string]any{"activity_id": postID}, &resp, log) {
		return nil
	}

	out := make([]model.EngagementRecord, 0, len(resp.Comments))
	for _, cm := range resp.Comments {
		rec := cm.Author.record(postID, model.EngagementComment)
		rec.CommentText = cm.Text
		out = append(out, rec)
	}
	return out
}

// Reposts pages through the post's reposts until a page comes back empty,
// the reported total is reached, or the page cap is hit. A failing page ends
// pagination and keeps what was already collected.
func (c *Collector) Reposts(ctx context.Context, postID string) []model.EngagementRecord {
	log := zap.L().With(zap.String("activity_id", postID), zap.String("kind", "reposts"))

	var out []model.EngagementRecord
	for page := 1; page <= c.maxRepostPages; page++ {
		var resp repostsResponse
		args := map[string]any{"activity_id": postID, "page": page}
		if !c.call(ctx, datagen.ToolPostReposts, args, &resp, log.With(zap.Int("page", page))) {
			break
		}
		if len(resp.Reposts) == 0 {
			break
		}

		for _, rp := range resp.Reposts {
			out = append(out, rp.Author.record(postID, model.EngagementRepost))
		}

		// Unknown or zero totals fall through to the empty-page and cap checks.
		if total, perPage := resp.pageInfo(); total > 0 {
			if page*perPage >= total || len(out) >= total {
				break
			}
		}
	}
	return out
}

// CollectPost gathers all three engagement kinds for one post.
func (c *Collector) CollectPost(ctx context.Context, postID string) []model.EngagementRecord {
	var out []model.EngagementRecord
	out = append(out, c.Reactions(ctx, postID)...)
	out = append(out, c.Comments(ctx, postID)...)
	out = append(out, c.Reposts(ctx, postID)...)
	return out
}

// CollectAll walks the posts sequentially, pausing after each one. It only
// returns an error when ctx is cancelled, alongside what was collected.
func (c *Collector) CollectAll(ctx context.Context, postIDs []string) ([]model.EngagementRecord, error) {
	var all []model.EngagementRecord
	for i, id := range postIDs {
		recs := c.CollectPost(ctx, id)
		all = append(all, recs...)
		zap.L().Info("collector: post scraped",
			zap.String("activity_id", id),
			zap.Int("post", i+1),
			zap.Int("posts", len(postIDs)),
			zap.Int("engagements", len(recs)),
		)

		if c.postDelay > 0 {
			timer := time.NewTimer(c.postDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return all, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return all, nil
}
