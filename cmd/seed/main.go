package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/salon-scheduling/internal/config"
	"github.com/hackgods/salon-scheduling/internal/db"
	"github.com/hackgods/salon-scheduling/internal/logging"
	"github.com/hackgods/salon-scheduling/internal/schedule"
	"github.com/hackgods/salon-scheduling/internal/timemodel"
)

var specialties = []string{
	"Hair",
	"Color",
	"Nails",
	"Brows",
	"Makeup",
	"Massage",
}

type professional struct {
	ID   string
	Name string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewLogger("seed", "info").Error("config load error", "err", err)
		os.Exit(1)
	}
	logger := logging.NewLogger("seed", cfg.LogLevel)

	if cfg.PostgresDSN == "" {
		logger.Error("POSTGRES_DSN is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error("connect postgres", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Error("ensure schema", "err", err)
		os.Exit(1)
	}

	faker := gofakeit.New(0)
	count := getInt("SEED_PROFESSIONALS", 12)
	perDay := getInt("SEED_APPOINTMENTS_PER_PROFESSIONAL", 6)

	date := timemodel.DateOf(time.Now().In(cfg.Location).AddDate(0, 0, 1))
	if v := os.Getenv("SEED_DATE"); v != "" {
		if date, err = timemodel.ParseDate(v); err != nil {
			logger.Error("invalid SEED_DATE", "err", err)
			os.Exit(1)
		}
	}

	pros, err := seedProfessionals(ctx, pool, faker, count, logger)
	if err != nil {
		logger.Error("seed professionals", "err", err)
		os.Exit(1)
	}

	engine := schedule.NewEngine(
		schedule.WithStore(schedule.NewPgStore(pool)),
		schedule.WithLogger(logger.WithGroup("engine")),
		schedule.WithHoldTTL(cfg.HoldTTL),
		schedule.WithLocation(cfg.Location),
	)

	created, err := seedAppointments(ctx, engine, faker, pros, date, cfg.BusinessHours(), perDay)
	if err != nil {
		logger.Error("seed appointments", "err", err)
		os.Exit(1)
	}

	logger.Info("seed complete", "professionals", len(pros), "appointments", created, "date", date)
}

func seedProfessionals(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger *slog.Logger) ([]professional, error) {
	logger.Info("seeding professionals", "count", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	pros := make([]professional, 0, count)
	for i := 0; i < count; i++ {
		first := faker.FirstName()
		p := professional{
			ID:   fmt.Sprintf("%s-%03d", strings.ToLower(first), i+1),
			Name: first + " " + faker.LastName(),
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO professionals (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
			ON CONFLICT (id) DO NOTHING
		`, p.ID, p.Name, faker.RandomString(specialties))
		if err != nil {
			return nil, err
		}
		pros = append(pros, p)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return pros, nil
}

// seedAppointments books a mix of confirmed manual appointments and open
// agent holds on date. Proposals that collide are skipped.
func seedAppointments(ctx context.Context, engine *schedule.Engine, faker *gofakeit.Faker, pros []professional, date timemodel.Date, window timemodel.Interval, perDay int) (int, error) {
	durations := []uint{30, 45, 60, 90}
	slots := int(window.DurationMinutes) / 15

	created := 0
	for _, p := range pros {
		for i := 0; i < perDay; i++ {
			duration := durations[faker.Number(0, len(durations)-1)]
			start := window.Start + timemodel.TimeOfDay(faker.Number(0, slots-1)*15)
			if uint(start)+duration > uint(window.End()) {
				continue
			}

			origin := schedule.OriginManual
			if faker.Bool() {
				origin = schedule.OriginAgent
			}

			a, err := engine.Propose(ctx, schedule.ProposeRequest{
				ResourceID: p.ID,
				Date:       date,
				Interval:   timemodel.Interval{Start: start, DurationMinutes: duration},
				Origin:     origin,
			})
			switch {
			case errors.Is(err, schedule.ErrConflict), errors.Is(err, timemodel.ErrInvalidInterval):
				continue
			case err != nil:
				return created, err
			}
			created++

			if origin == schedule.OriginManual {
				if _, err := engine.Confirm(ctx, a.ID, schedule.OriginManual); err != nil && !errors.Is(err, schedule.ErrConflict) {
					return created, err
				}
			}
		}
	}
	return created, nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
