// Package main is a mudra hook that speaks round results and training
// outcomes aloud.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Request represents the input from the hook executor.
type Request struct {
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	Config json.RawMessage `json:"config"`
}

// Response represents the output to the hook executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is read from the manifest's config block.
type Config struct {
	Voice  string `json:"voice"`
	DryRun bool   `json:"dry_run"`
}

type round struct {
	Human         string `json:"human"`
	Computer      string `json:"computer"`
	Outcome       string `json:"outcome"`
	HumanScore    int    `json:"human_score"`
	ComputerScore int    `json:"computer_score"`
}

type training struct {
	Reason    string `json:"reason"`
	Converged bool   `json:"converged"`
}

// phraseHandler turns an event payload into the sentence to speak.
type phraseHandler func(data json.RawMessage) (string, error)

var phraseHandlers = map[string]phraseHandler{
	"round_resolved":  roundPhrase,
	"trained":         trainedPhrase,
	"training_failed": failedPhrase,
	"game_started":    func(json.RawMessage) (string, error) { return "Get ready.", nil },
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	var cfg Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("invalid config: %v", err))
			return
		}
	}

	handler, ok := phraseHandlers[req.Event]
	if !ok {
		writeErrorResponse(fmt.Sprintf("unknown event: %s", req.Event))
		return
	}

	text, err := handler(req.Data)
	if err != nil {
		writeErrorResponse(fmt.Sprintf("event %s: %v", req.Event, err))
		return
	}

	if !cfg.DryRun {
		if err := speak(text, cfg.Voice); err != nil {
			writeErrorResponse(fmt.Sprintf("speak failed: %v", err))
			return
		}
	}

	writeSuccessResponse(text)
}

func roundPhrase(data json.RawMessage) (string, error) {
	var r round
	if err := json.Unmarshal(data, &r); err != nil {
		return "", err
	}

	var lead string
	switch r.Outcome {
	case "human":
		lead = fmt.Sprintf("You win. %s beats %s.", capitalize(r.Human), r.Computer)
	case "computer":
		lead = fmt.Sprintf("I win. %s beats %s.", capitalize(r.Computer), r.Human)
	case "tie":
		lead = fmt.Sprintf("Tie. We both played %s.", r.Human)
	default:
		return "", fmt.Errorf("unknown outcome %q", r.Outcome)
	}

	return fmt.Sprintf("%s %d to %d.", lead, r.HumanScore, r.ComputerScore), nil
}

func trainedPhrase(data json.RawMessage) (string, error) {
	var tr training
	if len(data) > 0 {
		if err := json.Unmarshal(data, &tr); err != nil {
			return "", err
		}
	}
	if tr.Converged {
		return "Model trained. Let's play.", nil
	}
	return "Model trained, but it may need more examples.", nil
}

func failedPhrase(data json.RawMessage) (string, error) {
	var tr training
	if len(data) > 0 {
		if err := json.Unmarshal(data, &tr); err != nil {
			return "", err
		}
	}
	if tr.Reason == "" {
		return "Training failed.", nil
	}
	return "Training failed: " + tr.Reason + ".", nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// speak uses the platform's text to speech command.
func speak(text, voice string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		args := []string{text}
		if voice != "" {
			args = append([]string{"-v", voice}, args...)
		}
		cmd = exec.Command("say", args...)
	case "linux":
		if _, err := exec.LookPath("espeak"); err != nil {
			return errors.New("espeak not installed")
		}
		args := []string{text}
		if voice != "" {
			args = append([]string{"-v", voice}, args...)
		}
		cmd = exec.Command("espeak", args...)
	default:
		return fmt.Errorf("speech not supported on %s", runtime.GOOS)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

// writeSuccessResponse writes a success response with the spoken text.
func writeSuccessResponse(text string) {
	data, _ := json.Marshal(map[string]string{"text": text})
	json.NewEncoder(os.Stdout).Encode(Response{Success: true, Data: data})
}
