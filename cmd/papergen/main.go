package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"papergen"

	"github.com/joho/godotenv"
	openai "github.com/sashabaranov/go-openai"
)

func main() {
	var (
		class        = flag.String("class", "", "Class level, e.g. \"Class 10\" (required)")
		subject      = flag.String("subject", "", "Subject name (required)")
		chapter      = flag.String("chapter", "", "Chapter name (required)")
		topic        = flag.String("topic", "", "Topic name (required)")
		numQuestions = flag.Int("questions", 5, "Number of questions to generate (1-50)")
		difficulty   = flag.Int("difficulty", 3, "Difficulty level (1-5)")
		questionType = flag.String("type", "Objective", "Question type (Objective or Descriptive)")
		choiceType   = flag.String("choice", "Single Choice", "Choice type for objective questions")
		outputBase   = flag.String("output", "", "Base path for output files (.txt and .tex); default: stdout only")
		stateFile    = flag.String("state", "", "Optional file for the full run state as JSON")
		dbPath       = flag.String("db", "", "Optional sqlite database to store the paper in")
		apiKey       = flag.String("api-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		verbose      = flag.Bool("verbose", false, "Enable verbose debugging output")
	)

	flag.Parse()

	papergen.SetVerbose(*verbose)

	// A missing .env is fine; config falls back to real env vars.
	_ = godotenv.Load()

	cfg, err := papergen.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *apiKey != "" {
		cfg.OpenAIAPIKey = *apiKey
	}
	if cfg.OpenAIAPIKey == "" {
		log.Fatal("OpenAI API key is required. Use -api-key flag or set OPENAI_API_KEY environment variable.")
	}

	inputs := papergen.UserInputs{
		Class:        *class,
		Subject:      *subject,
		Chapter:      *chapter,
		Topic:        *topic,
		NumQuestions: *numQuestions,
		Difficulty:   *difficulty,
		QuestionType: papergen.QuestionType(*questionType),
		ChoiceType:   papergen.ChoiceType(*choiceType),
	}
	if err := inputs.Validate(); err != nil {
		log.Fatalf("Invalid inputs: %v", err)
	}

	client := openai.NewClient(cfg.OpenAIAPIKey)

	var index papergen.ContextIndex
	if cfg.PineconeHost != "" && cfg.PineconeAPIKey != "" {
		embedder := papergen.NewOpenAIEmbedder(client, cfg.EmbeddingModel)
		index = papergen.NewPineconeIndex(cfg.PineconeHost, cfg.PineconeAPIKey, embedder)
	} else {
		log.Println("Pinecone not configured, generating without syllabus context")
	}

	pipeline := papergen.NewPipeline(client, index, cfg.ChatModel)
	pipeline.SetCallTimeout(cfg.LLMTimeout)
	pipeline.SetLogDir(cfg.LogDir)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	state := pipeline.Run(ctx, inputs)

	fmt.Println(state.Output)

	if *outputBase != "" {
		if err := os.WriteFile(*outputBase+".txt", []byte(state.Output), 0644); err != nil {
			log.Fatalf("Failed to write text output: %v", err)
		}
		if err := os.WriteFile(*outputBase+".tex", []byte(state.OutputLaTeX), 0644); err != nil {
			log.Fatalf("Failed to write LaTeX output: %v", err)
		}
		log.Printf("Paper saved to: %s.txt and %s.tex", *outputBase, *outputBase)
	}

	if *stateFile != "" {
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal state: %v", err)
		}
		if err := os.WriteFile(*stateFile, data, 0644); err != nil {
			log.Fatalf("Failed to write state file: %v", err)
		}
	}

	if *dbPath != "" {
		db, err := papergen.OpenDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.CloseDB()

		if err := db.CreateTables(); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		if err := db.SavePaper(state); err != nil {
			log.Fatalf("Failed to store paper: %v", err)
		}
		log.Printf("Paper %s stored in %s", state.RunID, *dbPath)
	}
}
