package feishu

import (
	"context"
	"encoding/json"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
	"github.com/vouchguard/vouchguard/internal/infra/logger"
)

// Client delivers alerts to a Feishu chat as rich-text posts. Feishu carries
// no interactive actions; operators respond through Telegram or the
// dashboard.
type Client struct {
	larkCli *lark.Client
	chatID  string
	log     *logger.Logger
}

// NewClient creates a Feishu client bound to one chat
func NewClient(appID, appSecret, chatID string, log *logger.Logger) *Client {
	return &Client{
		larkCli: lark.NewClient(appID, appSecret),
		chatID:  chatID,
		log:     log.With("channel", "feishu"),
	}
}

// Name identifies the channel
func (c *Client) Name() string { return "feishu" }

// SendAlert delivers a rich-text alert and returns the Feishu message id
func (c *Client) SendAlert(ctx context.Context, alertID string, p *domain.AlertPayload) (string, error) {
	post := map[string]interface{}{
		"en_us": map[string]interface{}{
			"title":   p.Title(),
			"content": buildPostContent(p),
		},
	}
	contentJSON, _ := json.Marshal(post)

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(c.chatID).
			MsgType(larkim.MsgTypePost).
			Content(string(contentJSON)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("send rich text failed: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("send rich text error: %s", resp.Msg)
	}

	msgID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		msgID = *resp.Data.MessageId
	}
	return msgID, nil
}

// SendText delivers a plain operational notice
func (c *Client) SendText(ctx context.Context, text string) error {
	content := map[string]string{"text": text}
	contentJSON, _ := json.Marshal(content)

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(c.chatID).
			MsgType(larkim.MsgTypeText).
			Content(string(contentJSON)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("send message failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("send message error: %s", resp.Msg)
	}
	return nil
}

// buildPostContent lays out the alert as rich-text rows, one line per row
func buildPostContent(p *domain.AlertPayload) [][]map[string]interface{} {
	textRow := func(s string) []map[string]interface{} {
		return []map[string]interface{}{{"tag": "text", "text": s}}
	}

	content := [][]map[string]interface{}{
		textRow(fmt.Sprintf("Target: %s (%s)", p.TargetName, domain.ShortAddress(p.TargetAddress))),
	}
	if p.AuthorName != "" {
		line := "From: " + p.AuthorName
		if p.AuthorAddress != "" {
			line += fmt.Sprintf(" (%s)", domain.ShortAddress(p.AuthorAddress))
		}
		content = append(content, textRow(line))
	}
	if p.Type != domain.AlertUnvouch {
		content = append(content, textRow(fmt.Sprintf("Score: %+d", p.Score)))
	}
	if p.Comment != "" {
		comment := p.Comment
		if len(comment) > 200 {
			comment = comment[:200] + "..."
		}
		content = append(content, textRow("Comment: "+comment))
	}
	content = append(content, []map[string]interface{}{
		{"tag": "a", "text": "View profile", "href": p.ProfileURL},
	})
	if p.Suggested != nil {
		content = append(content,
			textRow(fmt.Sprintf("Suggested defense (score %+d):", p.Suggested.Score)),
			textRow(p.Suggested.Comment),
		)
	}
	if p.DashboardURL != "" {
		content = append(content, []map[string]interface{}{
			{"tag": "a", "text": "Open dashboard", "href": p.DashboardURL},
		})
	}
	if p.TriageNote != "" {
		content = append(content, textRow("Triage: "+p.TriageNote))
	}
	return content
}
