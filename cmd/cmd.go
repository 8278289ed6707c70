package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/kyj44123-afk/cpla.ai-sub001/internal/models"
	"github.com/schollz/progressbar/v3"
)

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func (a *app) runChat(ctx context.Context) error {
	color.Cyan("\n노동법 상담 (종료하려면 'exit' 입력)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		text := strings.TrimSpace(scanner.Text())
		if strings.ToLower(text) == "exit" {
			break
		}
		if text == "" {
			continue
		}
		query := models.Query{Text: text}

		searchSpinner := getSpinner(" 관련 자료 검색 중...")
		bundle, err := a.pipeline.Retrieve(ctx, query)
		searchSpinner.Finish()
		fmt.Print("\r")

		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			color.Red("검색에 실패했습니다: %v\n", err)
			continue
		}
		if len(bundle.Citations) == 0 {
			color.Yellow("참고 자료 없이 답변합니다.\n")
		}

		if a.config.UI.Streaming {
			fmt.Print("\n")
			assistantPrompt("Assistant: ")

			responseSpinner := getSpinner(" Thinking...")
			firstChunk := true

			for chunk := range a.chat.AnswerStream(ctx, query, bundle) {
				if strings.HasPrefix(chunk, "Error:") {
					responseSpinner.Finish()
					color.Red("\n%s", chunk)
					break
				}

				if firstChunk {
					responseSpinner.Finish()
					firstChunk = false
					fmt.Print("\n")
				}

				fmt.Print(chunk)
			}

			if firstChunk {
				responseSpinner.Finish()
			}
			fmt.Print("\n")
		} else {
			responseSpinner := getSpinner(" Generating response...")
			answer, err := a.chat.Answer(ctx, query, bundle)
			responseSpinner.Finish()

			if err != nil {
				color.Red("Error: %v\n", err)
				continue
			}
			assistantPrompt("\nAssistant: %s\n", answer)
		}

		printCitations(bundle.Citations)
	}

	return nil
}

func printCitations(citations []models.Citation) {
	if len(citations) == 0 {
		return
	}

	color.Cyan("\n참고 자료:")
	internal := color.New(color.FgMagenta).SprintFunc()
	external := color.New(color.FgBlue).SprintFunc()

	for i, c := range citations {
		label := external("[판례/법령]")
		name := c.Title
		if c.Number != "" {
			name = fmt.Sprintf("%s (%s)", c.Title, c.Number)
		}
		if c.Source == models.SourceInternal {
			label = internal("[내부 자료]")
			if c.Filename != "" {
				name = fmt.Sprintf("%s - %s", c.Title, c.Filename)
			}
		}
		fmt.Printf("  %d. %s %s\n", i+1, label, name)
	}
}
