package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/soyeonk/replique/internal/app"
	"github.com/soyeonk/replique/internal/assistant"
	"github.com/soyeonk/replique/internal/intent"
	"github.com/soyeonk/replique/internal/practice"
)

// historyLimit bounds how much chat history is kept for intent classification.
const historyLimit = 50

// shell is the interactive practice loop. Outside a session, input goes to
// the assistant; a recognised practice request starts a session, after which
// input is scored as the learner's lines until the scene ends.
type shell struct {
	app     *app.App
	history []string

	// sessionID is non-empty while a practice session is running.
	sessionID string
	character string
}

func runShell(ctx context.Context, application *app.App) int {
	s := &shell{app: application}

	fmt.Println(`Type a message to chat, or "practice as <character> in S01E01" to start.`)
	fmt.Println(`Commands: /status, /quit (leave session), exit`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		s.printPrompt()
		if !scanner.Scan() {
			return 0
		}
		if ctx.Err() != nil {
			return 0
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if s.sessionID == "" && (line == "exit" || line == "quit") {
			return 0
		}

		if s.sessionID != "" {
			s.handleSessionInput(ctx, line)
		} else {
			s.handleChat(ctx, line)
		}
	}
}

func (s *shell) printPrompt() {
	if s.sessionID != "" {
		fmt.Printf("[%s] > ", s.character)
	} else {
		fmt.Print("> ")
	}
}

// handleChat routes a message through the assistant and starts a practice
// session when the reply carries a complete practice request.
func (s *shell) handleChat(ctx context.Context, line string) {
	if s.app.Assistant() == nil {
		// Without an LLM only structured practice requests work.
		req := intent.ParsePracticeRequest(line, s.history, assistant.CharacterNames())
		if intent.IsPracticeMessage(line, req) && req.Complete() {
			s.remember("User: " + line)
			s.startSession(ctx, &req)
			return
		}
		fmt.Println(`No LLM provider is configured. Try "practice as Joey in S01E01".`)
		return
	}

	reply := s.app.Assistant().Chat(ctx, line, s.history)
	s.remember("User: " + line)

	if reply.Practice != nil {
		s.startSession(ctx, reply.Practice)
		return
	}

	fmt.Println(reply.Text)
	s.remember("Assistant: " + reply.Text)
}

func (s *shell) startSession(ctx context.Context, req *intent.PracticeRequest) {
	start := practice.StartRequest{
		Character: req.Character,
		EpisodeID: req.EpisodeID,
	}
	if req.SceneNumber > 0 {
		start.SceneID = fmt.Sprintf("%s_%03d", req.EpisodeID, req.SceneNumber)
	}

	res, err := s.app.Practice().Start(ctx, start)
	if err != nil {
		if errors.Is(err, practice.ErrNoTurns) {
			fmt.Printf("%s has no lines in that scene. Try another character or scene.\n", req.Character)
		} else {
			fmt.Printf("Couldn't start that session: %v\n", err)
		}
		return
	}

	s.sessionID = res.Session.ID
	s.character = res.Session.Character

	fmt.Printf("\nScene: %s\n", res.Location)
	if res.Description != "" {
		fmt.Println(res.Description)
	}
	fmt.Printf("You are %s. %d line(s) to perform.\n\n", s.character, res.Session.TotalTurns)
	s.printTurn(res.Prompt)
}

// handleSessionInput scores one attempt or runs a session command.
func (s *shell) handleSessionInput(ctx context.Context, line string) {
	switch line {
	case "/quit":
		fmt.Println("Leaving the session. The scene will be waiting.")
		s.sessionID = ""
		s.character = ""
		return
	case "/status":
		s.printStatus(ctx)
		return
	}

	res, err := s.app.Practice().Continue(ctx, s.sessionID, line)
	if err != nil {
		if errors.Is(err, practice.ErrVersionConflict) {
			fmt.Println("That line was scored twice; try the next one.")
			return
		}
		fmt.Printf("Scoring failed: %v\n", err)
		return
	}

	fmt.Printf("%s (similarity %.2f)\n", res.Feedback, res.Attempt.Similarity)

	if res.Done {
		s.printSummary(ctx)
		s.sessionID = ""
		s.character = ""
		return
	}
	fmt.Println()
	s.printTurn(*res.NextPrompt)
}

func (s *shell) printTurn(p practice.TurnPrompt) {
	if p.Context != "" {
		fmt.Println(p.Context)
	}
	fmt.Printf("Expected: %s\n", p.Expected)
	fmt.Printf("Your line (%d/%d):\n", p.Ordinal, p.TotalTurns)
}

func (s *shell) printStatus(ctx context.Context) {
	prog, err := s.app.Practice().Status(ctx, s.sessionID)
	if err != nil {
		fmt.Printf("Status unavailable: %v\n", err)
		return
	}
	fmt.Printf("Scene %s as %s: %d done, %d to go, accuracy %.1f%%\n",
		prog.Session.SceneID, prog.Session.Character,
		prog.Completed, prog.Remaining, prog.Accuracy)
}

func (s *shell) printSummary(ctx context.Context) {
	sum, err := s.app.Practice().Complete(ctx, s.sessionID)
	if err != nil {
		fmt.Printf("Scene finished, but the summary failed: %v\n", err)
		return
	}
	fmt.Printf("\nScene complete! %d/%d lines correct (%.1f%%) in %.1f minutes. Final score: %d\n",
		sum.CorrectCount, sum.TotalTurns, sum.Accuracy, sum.DurationMinutes, sum.FinalScore)
}

func (s *shell) remember(entry string) {
	s.history = append(s.history, entry)
	if len(s.history) > historyLimit {
		s.history = s.history[len(s.history)-historyLimit:]
	}
}
