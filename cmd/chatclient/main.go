// Command chatclient is a terminal client for the Pagesmith chat endpoint.
// It authenticates, then reads page descriptions from stdin, streams the
// model's response, and saves the extracted HTML artifact to a file.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"pagesmith-backend/internal/models"
	"pagesmith-backend/internal/stream"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "Server URL")
	email := flag.String("email", "", "User email for authentication")
	password := flag.String("password", "", "User password for authentication")
	out := flag.String("out", "generated-page.html", "File to write the extracted HTML to")
	flag.Parse()

	if *email == "" || *password == "" {
		fmt.Println("Error: -email and -password are required")
		flag.Usage()
		os.Exit(1)
	}

	token, err := authenticate(*server, *email, *password)
	if err != nil {
		fmt.Printf("Authentication failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Authentication successful!")

	reader := bufio.NewReader(os.Stdin)
	var messages []models.ChatMessage

	for {
		fmt.Print("\nDescribe your page: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if strings.ToLower(input) == "exit" || strings.ToLower(input) == "quit" {
			fmt.Println("Goodbye!")
			return
		}

		messages = append(messages, models.ChatMessage{Role: models.RoleUser, Content: input})

		state, err := streamTurn(*server, token, messages, *out)
		if err != nil {
			fmt.Printf("\nChat failed: %v\n", err)
			// Drop the failed turn so a retry does not duplicate it.
			messages = messages[:len(messages)-1]
			continue
		}

		// Carry the full reply so follow-up turns can refine the page.
		messages = append(messages, models.ChatMessage{Role: models.RoleAssistant, Content: state.Buffer})

		if state.HasArtifact {
			fmt.Printf("\nSaved page to %s\n", *out)
		} else {
			fmt.Println("\nNo complete HTML block in the response.")
		}
	}
}

func authenticate(server, email, password string) (string, error) {
	body, _ := json.Marshal(models.LoginRequest{Email: email, Password: password})

	resp, err := http.Post(server+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login returned status %d", resp.StatusCode)
	}

	var tokens models.AuthTokens
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return "", err
	}
	return tokens.AccessToken, nil
}

func streamTurn(server, token string, messages []models.ChatMessage, out string) (stream.State, error) {
	body, _ := json.Marshal(models.ChatRequest{Messages: messages})

	req, err := http.NewRequest(http.MethodPost, server+"/api/v1/chat/stream", bytes.NewReader(body))
	if err != nil {
		return stream.State{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return stream.State{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp models.ErrorResponse
		json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Message != "" {
			return stream.State{}, fmt.Errorf("server error: %s", errResp.Message)
		}
		return stream.State{}, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	fmt.Print("\nModel: ")
	printed := 0
	state, err := stream.Consume(resp.Body, func(s stream.State) {
		fmt.Print(s.Buffer[printed:])
		printed = len(s.Buffer)

		if s.HasArtifact {
			if werr := os.WriteFile(out, []byte(s.Artifact), 0644); werr != nil {
				fmt.Printf("\nFailed to write %s: %v\n", out, werr)
			}
		}
	})
	if err != nil {
		// The stream died mid-turn; whatever was extracted before the
		// failure is already on disk, but the turn is incomplete.
		return state, fmt.Errorf("stream ended early: %w", err)
	}

	return state, nil
}
