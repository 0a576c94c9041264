package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pawbook/appointment-service/internal/db"
)

// Dev-only data generator. Populates clinicians, clinic services, pets and a
// spread of appointments so the API and the simulator have something to hit.
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

	clinicians, err := seedClinicians(context.Background(), pool, 40)
	if err != nil {
		log.Fatalf("seed clinicians: %v", err)
	}
	services, err := seedServices(context.Background(), pool)
	if err != nil {
		log.Fatalf("seed services: %v", err)
	}
	pets, err := seedPets(context.Background(), pool, 2000)
	if err != nil {
		log.Fatalf("seed pets: %v", err)
	}
	if err := seedAppointments(context.Background(), pool, clinicians, services, pets, 5000); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

func seedClinicians(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d clinicians", count)

	specialties := []string{
		"General Practice",
		"Surgery",
		"Dermatology",
		"Dentistry",
		"Cardiology",
		"Exotics",
		"Ophthalmology",
		"Behavior",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		// Roughly one assistant for every three vets.
		role := "vet"
		if i%4 == 3 {
			role = "assistant"
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO clinicians (id, name, role, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, name, role, spec)
		if err != nil {
			return nil, err
		}
		if role == "vet" {
			ids = append(ids, id)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("clinicians seeded")
	return ids, nil
}

func seedServices(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	services := []struct {
		name    string
		minutes int
	}{
		{"Wellness Exam", 30},
		{"Vaccination", 15},
		{"Dental Cleaning", 60},
		{"Spay/Neuter", 90},
		{"X-Ray", 45},
		{"Grooming", 45},
		{"Nail Trim", 15},
		{"Sick Visit", 30},
	}

	log.Printf("seeding %d clinic services", len(services))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, len(services))
	for _, s := range services {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO clinic_services (id, name, duration_minutes, active, created_at, updated_at)
			VALUES ($1, $2, $3, true, now(), now())
		`, id, s.name, s.minutes)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("clinic services seeded")
	return ids, nil
}

func seedPets(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d pets", count)

	const batchSize = 500
	species := []string{"dog", "cat", "rabbit", "bird", "reptile"}

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			ownerID := uuid.New()
			name := gofakeit.PetName()
			sp := species[gofakeit.Number(0, len(species)-1)]

			_, err := tx.Exec(ctx, `
				INSERT INTO pets (id, owner_id, name, species, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, ownerID, name, sp)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		log.Printf("pets seeded: %d/%d", end, count)
	}

	log.Println("pets seeded")
	return ids, nil
}

// seedAppointments lays bookings on a 15-minute grid over the next two weeks
// of working hours. Duplicate slots hit the exclusion constraint and are
// skipped, so the final count lands a little under the target.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, clinicians, services, pets []uuid.UUID, count int) error {
	log.Printf("seeding up to %d appointments", count)

	const batchSize = 250
	durations := map[uuid.UUID]int{}

	rows, err := pool.Query(ctx, `SELECT id, duration_minutes FROM clinic_services`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var id uuid.UUID
		var mins int
		if err := rows.Scan(&id, &mins); err != nil {
			rows.Close()
			return err
		}
		durations[id] = mins
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	dayStart := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	seeded := 0

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		for i := offset; i < end; i++ {
			clinicianID := clinicians[gofakeit.Number(0, len(clinicians)-1)]
			serviceID := services[gofakeit.Number(0, len(services)-1)]
			petID := pets[gofakeit.Number(0, len(pets)-1)]

			day := gofakeit.Number(0, 13)
			slot := gofakeit.Number(0, 35) // 09:00-18:00 on a 15-minute grid
			scheduledAt := dayStart.AddDate(0, 0, day).
				Add(9 * time.Hour).
				Add(time.Duration(slot) * 15 * time.Minute)

			tag, err := pool.Exec(ctx, `
				INSERT INTO appointments
					(id, pet_id, clinician_id, service_id, scheduled_at, duration_minutes,
					 status, reason, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, 'scheduled', $7, now(), now())
				ON CONFLICT DO NOTHING
			`, uuid.New(), petID, clinicianID, serviceID, scheduledAt, durations[serviceID], gofakeit.Sentence(6))
			if err != nil {
				return err
			}
			seeded += int(tag.RowsAffected())
		}

		log.Printf("appointments attempted: %d/%d", end, count)
	}

	log.Printf("appointments seeded: %d (rest collided)", seeded)
	return nil
}
