package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medibook/clinic-scheduling/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedDoctors(context.Background(), pool, 50); err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d doctors", count)

	specializations := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}
	windows := []struct {
		start, end string
	}{
		{"08:00", "12:00"},
		{"09:00", "13:00"},
		{"10:00", "14:00"},
		{"14:00", "18:00"},
	}
	durations := []int{10, 15, 20, 30}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specializations[gofakeit.Number(0, len(specializations)-1)]
		win := windows[gofakeit.Number(0, len(windows)-1)]
		duration := durations[gofakeit.Number(0, len(durations)-1)]

		scheduleType := "wave"
		dailyCapacity := 0
		if gofakeit.Number(0, 4) == 0 {
			scheduleType = "stream"
			dailyCapacity = gofakeit.Number(10, 40)
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialization, schedule_type, consulting_start, consulting_end, slot_duration, capacity_per_slot, daily_capacity, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		`, id, name, spec, scheduleType, win.start, win.end, duration, gofakeit.Number(1, 3), dailyCapacity)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		email := gofakeit.Email()

		_, err := tx.Exec(ctx, `
			INSERT INTO patients (id, name, email, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, email)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
