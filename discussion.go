package counsel

import (
	"context"
	"strings"
)

// discussionEntry is one contribution to the shared discussion transcript.
type discussionEntry struct {
	RoleID  string
	Name    string
	Content string
}

// renderDiscussion renders transcript entries as 【<name>】<content> lines.
func renderDiscussion(entries []discussionEntry) string {
	lines := make([]string, len(entries))
	for i, entry := range entries {
		lines[i] = "【" + entry.Name + "】" + entry.Content
	}
	return strings.Join(lines, "\n")
}

// runDiscussion runs the moderated protocol: every planned role states an
// initial position, then up to the round budget each may supplement after a
// coordinator checks for consensus, and the synthesizer closes with a
// summary. Unlike DAG scheduling, a model failure here fails the turn.
func (e *Engine) runDiscussion(ctx context.Context, input string, plan Plan, cc *ConversationContext, emit emitFn) error {
	var transcript []discussionEntry
	discard := func(Event) error { return nil }

	for _, role := range plan.Roles(e.roles) {
		if err := emit(Event{Type: EventRoleStart, Role: role.ID, Name: role.Name, Icon: role.Icon}); err != nil {
			return err
		}
		content, err := e.executeRole(ctx, role, input, cc, discard)
		if err != nil {
			return err
		}
		cc.RoleResults.Set(role.ID, content)
		transcript = append(transcript, discussionEntry{RoleID: role.ID, Name: role.Name, Content: content})
		if err := emit(Event{Type: EventRoleResult, Role: role.ID, Content: content}); err != nil {
			return err
		}
	}

	for round := 1; round < e.maxDiscussionRounds; round++ {
		converged, err := e.checkConsensus(ctx, input, transcript)
		if err != nil {
			return err
		}
		if converged {
			e.logger.Info("讨论达成共识", "round", round)
			break
		}
		for _, role := range plan.Roles(e.roles) {
			supplement, err := e.generateSupplement(ctx, role, input, transcript)
			if err != nil {
				return err
			}
			if supplement == "" {
				continue
			}
			transcript = append(transcript, discussionEntry{RoleID: role.ID, Name: role.Name, Content: supplement})
			if err := emit(Event{
				Type:    EventDiscussion,
				From:    role.ID,
				Name:    role.Name,
				Content: supplement,
				Round:   round + 1,
			}); err != nil {
				return err
			}
		}
	}

	synth := e.roles.Synthesizer()
	if err := emit(Event{Type: EventRoleStart, Role: synth.ID, Name: synth.Name, Icon: synth.Icon}); err != nil {
		return err
	}
	summary, err := e.summarizeDiscussion(ctx, synth, input, transcript)
	if err != nil {
		return err
	}
	if err := emit(Event{Type: EventRoleResult, Role: synth.ID, Content: summary}); err != nil {
		return err
	}
	cc.AddMessage("assistant", summary)
	return nil
}

// checkConsensus asks a coordinator whether the experts have converged,
// judging from the last few contributions. Fewer than two contributions can
// never be consensus.
func (e *Engine) checkConsensus(ctx context.Context, input string, transcript []discussionEntry) (bool, error) {
	if len(transcript) < 2 {
		return false, nil
	}
	recent := transcript
	if len(recent) > 4 {
		recent = recent[len(recent)-4:]
	}

	prompt := "用户问题：" + input +
		"\n\n最近的讨论内容：\n" + renderDiscussion(recent) +
		"\n\n请判断专家们是否已经达成共识？只回答\"是\"或\"否\"。"
	resp, err := e.provider.Chat(ctx, ChatRequest{
		Messages: []ChatMessage{
			SystemMessage("你是一个讨论协调者，负责判断专家们是否已经达成共识。"),
			UserMessage(prompt),
		},
		Temperature: 0.1,
	})
	if err != nil {
		return false, err
	}
	return strings.Contains(resp.Content, "是"), nil
}

// generateSupplement asks one role for an additional opinion given the full
// transcript. A declining reply (contains 无补充) yields the empty string.
func (e *Engine) generateSupplement(ctx context.Context, role Role, input string, transcript []discussionEntry) (string, error) {
	system := role.SystemPrompt +
		"\n\n你正在参与一个多专家讨论。请根据其他专家的意见，补充你的观点或提出不同看法。" +
		"如果你认为已经充分表达了观点，无需补充，请回复\"无补充\"。"
	user := "用户问题：" + input +
		"\n\n讨论历史：\n" + renderDiscussion(transcript) +
		"\n\n请补充你的观点（如无需补充请回复\"无补充\"）："

	resp, err := e.provider.Chat(ctx, ChatRequest{
		Messages: []ChatMessage{
			SystemMessage(system),
			UserMessage(user),
		},
		Temperature: roleTemperature,
	})
	if err != nil {
		return "", err
	}
	if strings.Contains(resp.Content, "无补充") {
		return "", nil
	}
	return resp.Content, nil
}

// summarizeDiscussion produces the closing synthesis over the transcript.
func (e *Engine) summarizeDiscussion(ctx context.Context, synth Role, input string, transcript []discussionEntry) (string, error) {
	system := synth.SystemPrompt + "\n\n你需要总结以下专家讨论的结果，为用户提供最终的综合建议。"
	user := "用户问题：" + input +
		"\n\n专家讨论记录：\n" + renderDiscussion(transcript) +
		"\n\n请总结讨论结果，给出最终建议："

	resp, err := e.provider.Chat(ctx, ChatRequest{
		Messages: []ChatMessage{
			SystemMessage(system),
			UserMessage(user),
		},
		Temperature: roleTemperature,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
