// storylab-client is a small CLI that drives the storylab HTTP API:
// generate a story for a topic, or narrate text paragraph by paragraph,
// saving each result through the service.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nicekate/storylab/internal/gateway"
)

// Flag descriptions.
const (
	flagServerDesc   = "Base URL of the storylab service"
	flagTopicDesc    = "Topic to generate a story for"
	flagTextDesc     = "Text to narrate"
	flagFileDesc     = "Path to a text file to narrate paragraph by paragraph"
	flagLanguageDesc = "Narration language (en or zh)"
	flagVoiceDesc    = "Voice preset or voice id"
)

// Error and log messages.
const (
	errEitherTopicOrText = "Either -topic, -text or -file must be provided"
	errRequestFailed     = "Request failed: %v"
	logStoryGenerated    = "Generated story:\n\n%s\n"
	logParagraphDone     = "Narrated paragraph %d/%d: %s\n"
	logParagraphFailed   = "Paragraph %d/%d failed: %v\n"
	logBatchSummary      = "Done: %d succeeded, %d failed\n"
)

const requestTimeout = 10 * time.Minute

type appFlags struct {
	server   string
	topic    string
	text     string
	file     string
	language string
	voice    string
}

func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.server, "server", "http://localhost:8080", flagServerDesc)
	flag.StringVar(&flags.topic, "topic", "", flagTopicDesc)
	flag.StringVar(&flags.text, "text", "", flagTextDesc)
	flag.StringVar(&flags.file, "file", "", flagFileDesc)
	flag.StringVar(&flags.language, "language", "en", flagLanguageDesc)
	flag.StringVar(&flags.voice, "voice", "", flagVoiceDesc)
	flag.Parse()

	return flags
}

type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

func (c *apiClient) postJSON(ctx context.Context, path string, payload, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+path,
		bytes.NewBuffer(body),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error string `json:"error"`
		}

		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return errors.New(errResp.Error)
		}

		return fmt.Errorf("%s returned %s", path, resp.Status)
	}

	err = json.Unmarshal(respBody, target)
	if err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	return nil
}

type storyReply struct {
	Story string `json:"story"`
}

func (c *apiClient) generateStory(ctx context.Context, topic, language string) (string, error) {
	var reply storyReply

	err := c.postJSON(ctx, "/api/story", map[string]string{
		"topic":    topic,
		"language": language,
	}, &reply)
	if err != nil {
		return "", err
	}

	return reply.Story, nil
}

type narrationReply struct {
	Output    string `json:"output"`
	FileName  string `json:"fileName"`
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
	Voice     string `json:"voice"`
	Language  string `json:"language"`
	Type      string `json:"type"`
}

func (c *apiClient) narrateParagraph(ctx context.Context, text, language, voice string) (narrationReply, error) {
	var reply narrationReply

	err := c.postJSON(ctx, "/api/generate", map[string]string{
		"text":     text,
		"language": language,
		"voice":    voice,
	}, &reply)
	if err != nil {
		return narrationReply{}, err
	}

	err = c.saveNarration(ctx, reply)
	if err != nil {
		return narrationReply{}, err
	}

	return reply, nil
}

// saveNarration uploads the generated audio plus its metadata so the
// service persists both the file and the history record.
func (c *apiClient) saveNarration(ctx context.Context, reply narrationReply) error {
	audio, err := decodeNarrationAudio(reply)
	if err != nil {
		return err
	}

	var form bytes.Buffer

	writer := multipart.NewWriter(&form)

	part, err := writer.CreateFormFile("file", reply.FileName)
	if err != nil {
		return fmt.Errorf("failed to build upload form: %w", err)
	}

	_, err = part.Write(audio)
	if err != nil {
		return fmt.Errorf("failed to write audio into form: %w", err)
	}

	metadata, err := json.Marshal(map[string]string{
		"timestamp": reply.Timestamp,
		"text":      reply.Text,
		"voice":     reply.Voice,
		"fileName":  reply.FileName,
		"language":  reply.Language,
		"type":      reply.Type,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	err = writer.WriteField("metadata", string(metadata))
	if err != nil {
		return fmt.Errorf("failed to write metadata field: %w", err)
	}

	err = writer.Close()
	if err != nil {
		return fmt.Errorf("failed to finalize upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/api/save-audio",
		&form,
	)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)

		return fmt.Errorf("upload returned %s: %s", resp.Status, string(body))
	}

	return nil
}

func decodeNarrationAudio(reply narrationReply) ([]byte, error) {
	if reply.Language == "zh" {
		audio, err := base64.StdEncoding.DecodeString(reply.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to decode zh audio: %w", err)
		}

		return audio, nil
	}

	audio, err := hex.DecodeString(reply.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio: %w", err)
	}

	return audio, nil
}

func narrate(ctx context.Context, client *apiClient, flags appFlags, text string) {
	paragraphs := gateway.SplitParagraphs(text)
	succeeded := 0
	failed := 0

	for i, paragraph := range paragraphs {
		reply, err := client.narrateParagraph(ctx, paragraph, flags.language, flags.voice)
		if err != nil {
			failed++

			fmt.Fprintf(os.Stderr, logParagraphFailed, i+1, len(paragraphs), err)

			continue
		}

		succeeded++

		fmt.Printf(logParagraphDone, i+1, len(paragraphs), reply.FileName)
	}

	fmt.Printf(logBatchSummary, succeeded, failed)
}

func run() error {
	flags := parseFlags()

	text := flags.text
	if flags.file != "" {
		data, err := os.ReadFile(flags.file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", flags.file, err)
		}

		text = string(data)
	}

	if flags.topic == "" && text == "" {
		return errors.New(errEitherTopicOrText)
	}

	ctx := context.Background()
	client := newAPIClient(flags.server)

	if flags.topic != "" {
		story, err := client.generateStory(ctx, flags.topic, flags.language)
		if err != nil {
			return err
		}

		fmt.Printf(logStoryGenerated, story)

		if text == "" {
			return nil
		}
	}

	narrate(ctx, client, flags, text)

	return nil
}

func main() {
	err := run()
	if err != nil {
		log.Fatalf(errRequestFailed, err)
	}
}
