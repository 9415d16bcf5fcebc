package main

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	govalidator "github.com/go-playground/validator/v10"
	"github.com/talentgrid/assessment-backend/internal/config"
	"github.com/talentgrid/assessment-backend/internal/database"
	"github.com/talentgrid/assessment-backend/internal/logger"
	"github.com/talentgrid/assessment-backend/internal/model"
	"github.com/talentgrid/assessment-backend/internal/repository"
	"github.com/talentgrid/assessment-backend/internal/service"
	"github.com/talentgrid/assessment-backend/internal/validator"
)

//go:embed catalog.json
var builtinCatalog []byte

func main() {
	var file string
	flag.StringVar(&file, "file", "", "JSON exam catalog (defaults to the built-in catalog)")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	src := io.Reader(bytes.NewReader(builtinCatalog))
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			log.Fatal().Err(err).Str("file", file).Msg("Failed to open catalog")
		}
		defer f.Close()
		src = f
	}

	exams, err := loadCatalog(src, validator.New())
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid catalog")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	examService := service.NewExamService(repository.NewExamRepository(pool), rdb, log)

	fmt.Printf("=== Seeding %d exams ===\n", len(exams))
	created, skipped := 0, 0
	for _, exam := range exams {
		err := examService.Create(ctx, exam)
		switch {
		case err == nil:
			created++
			fmt.Printf("  + %s (%d questions)\n", exam.Slug, len(exam.Questions))
		case errors.Is(err, service.ErrDuplicateExamSlug):
			skipped++
			fmt.Printf("  = %s already exists\n", exam.Slug)
		default:
			log.Fatal().Err(err).Str("slug", exam.Slug).Msg("Failed to create exam")
		}
	}
	fmt.Printf("Done: %d created, %d skipped\n", created, skipped)
}

// loadCatalog decodes and validates a JSON array of exam definitions.
func loadCatalog(r io.Reader, v *govalidator.Validate) ([]*model.Exam, error) {
	var reqs []model.CreateExamRequest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&reqs); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	seen := make(map[string]bool, len(reqs))
	exams := make([]*model.Exam, 0, len(reqs))
	for i := range reqs {
		if err := v.Struct(&reqs[i]); err != nil {
			return nil, fmt.Errorf("exam %d (%s): %w", i, reqs[i].Slug, err)
		}
		if seen[reqs[i].Slug] {
			return nil, fmt.Errorf("exam %d: duplicate slug %q", i, reqs[i].Slug)
		}
		seen[reqs[i].Slug] = true
		exams = append(exams, reqs[i].ToExam())
	}
	return exams, nil
}
