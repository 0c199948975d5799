// simulate hammers the booking API with concurrent confirm and cancel
// requests, then audits the database to prove no slot ever exceeded its
// capacity.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medibook/clinic-scheduling/internal/db"
)

type simConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	CancelRatio float64
	PostgresDSN string
}

type counters struct {
	confirmed int64
	conflicts int64
	cancelled int64
	badReq    int64
	errors    int64
}

type pool struct {
	doctors  []uuid.UUID
	patients []uuid.UUID

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (p *pool) addAppointment(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.appointments = append(p.appointments, id)
}

func (p *pool) randomAppointment() (uuid.UUID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.appointments) == 0 {
		return uuid.Nil, false
	}
	return p.appointments[rand.Intn(len(p.appointments))], true
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := loadSimConfig()
	log.Printf("simulate: url=%s workers=%d duration=%s", cfg.APIBaseURL, cfg.Workers, cfg.Duration)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration+time.Minute)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	data, err := loadPool(ctx, pgPool)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("loaded %d doctors, %d patients", len(data.doctors), len(data.patients))

	var stats counters
	date := time.Now().UTC().Format("2006-01-02")
	deadline := time.Now().Add(cfg.Duration)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}
			for time.Now().Before(deadline) {
				if rand.Float64() < cfg.CancelRatio {
					runCancel(client, cfg.APIBaseURL, data, &stats)
				} else {
					runConfirm(client, cfg.APIBaseURL, date, data, &stats)
				}
			}
		}()
	}
	wg.Wait()

	log.Printf("summary: confirmed=%d conflicts=%d cancelled=%d bad_requests=%d errors=%d",
		atomic.LoadInt64(&stats.confirmed),
		atomic.LoadInt64(&stats.conflicts),
		atomic.LoadInt64(&stats.cancelled),
		atomic.LoadInt64(&stats.badReq),
		atomic.LoadInt64(&stats.errors),
	)

	if err := auditCapacity(ctx, pgPool); err != nil {
		log.Fatalf("capacity audit FAILED: %v", err)
	}
	log.Println("capacity audit passed: no slot exceeds its capacity")
}

func loadSimConfig() simConfig {
	cfg := simConfig{
		APIBaseURL:  getenv("SIM_API_URL", "http://127.0.0.1:8080"),
		Duration:    30 * time.Second,
		Workers:     20,
		CancelRatio: 0.2,
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}
	if v := os.Getenv("SIM_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Duration = d
		}
	}
	if v := os.Getenv("SIM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadPool(ctx context.Context, pgPool *pgxpool.Pool) (*pool, error) {
	p := &pool{}

	rows, err := pgPool.Query(ctx, `SELECT id FROM doctors LIMIT 200`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		p.doctors = append(p.doctors, id)
	}

	prows, err := pgPool.Query(ctx, `SELECT id FROM patients LIMIT 2000`)
	if err != nil {
		return nil, err
	}
	defer prows.Close()
	for prows.Next() {
		var id uuid.UUID
		if err := prows.Scan(&id); err != nil {
			return nil, err
		}
		p.patients = append(p.patients, id)
	}

	if len(p.doctors) == 0 || len(p.patients) == 0 {
		return nil, fmt.Errorf("no doctors or patients, run cmd/seed first")
	}
	return p, nil
}

type slotEntry struct {
	Time      time.Time `json:"time"`
	Available int       `json:"available"`
}

type apptResponse struct {
	ID string `json:"id"`
}

func runConfirm(client *http.Client, baseURL, date string, data *pool, stats *counters) {
	doctorID := data.doctors[rand.Intn(len(data.doctors))]
	patientID := data.patients[rand.Intn(len(data.patients))]

	resp, err := client.Get(fmt.Sprintf("%s/api/v1/doctors/%s/slots?date=%s", baseURL, doctorID, date))
	if err != nil {
		atomic.AddInt64(&stats.errors, 1)
		return
	}
	var slots []slotEntry
	err = json.NewDecoder(resp.Body).Decode(&slots)
	closeBody(resp)
	if err != nil || len(slots) == 0 {
		return
	}

	// Deliberately also target full slots so conflict handling gets exercised.
	slot := slots[rand.Intn(len(slots))]

	body, _ := json.Marshal(map[string]string{
		"patient_id": patientID.String(),
		"doctor_id":  doctorID.String(),
		"slot":       slot.Time.Format(time.RFC3339),
	})
	resp, err = client.Post(baseURL+"/api/v1/appointments/confirm", "application/json", bytes.NewReader(body))
	if err != nil {
		atomic.AddInt64(&stats.errors, 1)
		return
	}
	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusCreated:
		atomic.AddInt64(&stats.confirmed, 1)
		var appt apptResponse
		if err := json.NewDecoder(resp.Body).Decode(&appt); err == nil {
			if id, err := uuid.Parse(appt.ID); err == nil {
				data.addAppointment(id)
			}
		}
	case http.StatusConflict:
		atomic.AddInt64(&stats.conflicts, 1)
	case http.StatusBadRequest:
		atomic.AddInt64(&stats.badReq, 1)
	default:
		atomic.AddInt64(&stats.errors, 1)
	}
}

func runCancel(client *http.Client, baseURL string, data *pool, stats *counters) {
	id, ok := data.randomAppointment()
	if !ok {
		return
	}

	body, _ := json.Marshal(map[string]string{
		"cancelled_by": "patient",
		"reason":       "simulation",
	})
	resp, err := client.Post(fmt.Sprintf("%s/api/v1/appointments/%s/cancel", baseURL, id), "application/json", bytes.NewReader(body))
	if err != nil {
		atomic.AddInt64(&stats.errors, 1)
		return
	}
	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		atomic.AddInt64(&stats.cancelled, 1)
	case http.StatusConflict, http.StatusNotFound:
		// Already cancelled by another worker.
	default:
		atomic.AddInt64(&stats.errors, 1)
	}
}

// auditCapacity cross-checks every booked slot against the covering
// availability block or the doctor's per-slot fallback capacity.
func auditCapacity(ctx context.Context, pgPool *pgxpool.Pool) error {
	rows, err := pgPool.Query(ctx, `
		SELECT a.doctor_id, a.slot, count(*) AS booked,
		       COALESCE(max(av.capacity), max(d.capacity_per_slot)) AS cap
		FROM appointment a
		JOIN doctors d ON d.id = a.doctor_id
		LEFT JOIN availability av
		       ON av.doctor_id = a.doctor_id AND av.day = a.slot::date
		WHERE a.status = 'confirmed'
		GROUP BY a.doctor_id, a.slot
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var violations int
	for rows.Next() {
		var doctorID uuid.UUID
		var slot time.Time
		var booked, capacity int
		if err := rows.Scan(&doctorID, &slot, &booked, &capacity); err != nil {
			return err
		}
		if capacity > 0 && booked > capacity {
			violations++
			log.Printf("OVERBOOKED doctor=%s slot=%s booked=%d capacity=%d", doctorID, slot, booked, capacity)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if violations > 0 {
		return fmt.Errorf("%d overbooked slots", violations)
	}
	return nil
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
