package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stemsi/pisaprep/internal/config"
	"github.com/stemsi/pisaprep/internal/content"
	"github.com/stemsi/pisaprep/internal/database"
	"github.com/stemsi/pisaprep/internal/logger"
	"github.com/stemsi/pisaprep/internal/model"
	"github.com/stemsi/pisaprep/internal/remote"
	"github.com/stemsi/pisaprep/internal/repository/sqlite"
)

type packFile struct {
	ID              string         `json:"id"`
	Version         int            `json:"version"`
	Title           string         `json:"title"`
	DurationMinutes int            `json:"duration_minutes"`
	Questions       []questionFile `json:"questions"`
}

type questionFile struct {
	ID              string         `json:"id"`
	Subject         string         `json:"subject"`
	TextID          string         `json:"text_id"`
	Prompt          string         `json:"prompt"`
	CorrectOptionID string         `json:"correct_option_id"`
	Options         []model.Option `json:"options"`
}

func main() {
	var (
		path    string
		publish bool
	)
	flag.StringVar(&path, "file", "", "Content pack JSON file")
	flag.BoolVar(&publish, "publish", false, "Also publish the pack to the remote store")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if path == "" {
		log.Fatal().Msg("-file is required")
	}

	pack, questions, err := load(path)
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("Invalid content pack")
	}

	db, err := database.NewLocalStore(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open local store")
	}
	defer db.Close()

	if err := sqlite.NewContentRepository(db).SavePack(ctx, pack, questions); err != nil {
		log.Fatal().Err(err).Msg("Failed to save pack")
	}
	fmt.Printf("Saved pack %s v%d (%d questions) locally\n", pack.ID, pack.Version, len(questions))

	if !publish {
		return
	}

	pool, err := database.NewRemotePool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to remote store")
	}
	defer pool.Close()

	writes, err := content.PublishWrites(pack, questions)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode pack")
	}
	if err := remote.NewPostgresStore(pool).Merge(ctx, writes); err != nil {
		log.Fatal().Err(err).Msg("Failed to publish pack")
	}
	fmt.Printf("Published pack %s v%d as current\n", pack.ID, pack.Version)
}

func load(path string) (model.ContentPack, []model.Question, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.ContentPack{}, nil, err
	}
	var f packFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return model.ContentPack{}, nil, fmt.Errorf("decode: %w", err)
	}
	if f.ID == "" || f.Version <= 0 || len(f.Questions) == 0 {
		return model.ContentPack{}, nil, fmt.Errorf("pack needs an id, a positive version and at least one question")
	}
	if f.DurationMinutes <= 0 {
		f.DurationMinutes = 120
	}

	pack := model.ContentPack{
		ID:          f.ID,
		Version:     f.Version,
		Title:       f.Title,
		Duration:    time.Duration(f.DurationMinutes) * time.Minute,
		PublishedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	seen := make(map[string]bool, len(f.Questions))
	questions := make([]model.Question, 0, len(f.Questions))
	for i, qf := range f.Questions {
		if qf.ID == "" || seen[qf.ID] {
			return model.ContentPack{}, nil, fmt.Errorf("question %d: missing or duplicate id %q", i+1, qf.ID)
		}
		seen[qf.ID] = true

		q := model.Question{
			ID:              qf.ID,
			PackID:          f.ID,
			Subject:         qf.Subject,
			TextID:          qf.TextID,
			Prompt:          qf.Prompt,
			CorrectOptionID: qf.CorrectOptionID,
			OrderNum:        i + 1,
			Options:         qf.Options,
		}
		for j := range q.Options {
			if q.Options[j].OrderNum == 0 {
				q.Options[j].OrderNum = j + 1
			}
		}
		if !q.HasOption(q.CorrectOptionID) {
			return model.ContentPack{}, nil, fmt.Errorf("question %s: correct option %q is not among its options", q.ID, q.CorrectOptionID)
		}
		questions = append(questions, q)
	}
	return pack, questions, nil
}
