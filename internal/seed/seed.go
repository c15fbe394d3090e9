// Package seed populates a fresh database with the baseline records the app
// needs on first run: one administrator, one organization, and a set of
// sample patients. Because it only acts on an empty users collection, running
// it on every process start is safe.
package seed

import (
	"context"
	"fmt"

	"github.com/clinicedge/clinicedge/internal/docstore"
	"github.com/clinicedge/clinicedge/internal/logging"
	"github.com/clinicedge/clinicedge/internal/session"
)

// Collection names touched by the seeder.
const (
	UsersCollection         = "users"
	OrganizationsCollection = "organizations"
	PatientsCollection      = "patients"
)

// SamplePatientCount is the number of demo patients created on first run.
const SamplePatientCount = 12

var patientStatuses = []string{"active", "discharged", "waiting"}

var patientConditions = []string{
	"Hypertension",
	"Diabetes Type 2",
	"Asthma",
	"Migraine",
	"Back Pain",
}

// Run seeds the store when the users collection is empty and records the
// administrator as the current session user. A non-empty store is left
// untouched.
func Run(ctx context.Context, store *docstore.Store, markers *session.Manager, log logging.Logger) error {
	if log == nil {
		log = logging.Nop()
	}

	users, err := store.List(ctx, UsersCollection)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if len(users) > 0 {
		log.Debug(ctx, "store already seeded", "users", len(users))
		return nil
	}

	admin, err := store.Create(ctx, UsersCollection, docstore.Record{
		"full_name": "Clinic Administrator",
		"email":     "admin@clinic.local",
		"role":      "admin",
	})
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	if _, err := store.Create(ctx, OrganizationsCollection, docstore.Record{
		"name":     "Main Street Clinic",
		"address":  "1 Main Street",
		"owner_id": admin.ID(),
	}); err != nil {
		return fmt.Errorf("seed organization: %w", err)
	}

	for i := 0; i < SamplePatientCount; i++ {
		if _, err := store.Create(ctx, PatientsCollection, samplePatient(i)); err != nil {
			return fmt.Errorf("seed patient %d: %w", i, err)
		}
	}

	if err := markers.SetCurrentUserID(ctx, admin.ID()); err != nil {
		return fmt.Errorf("seed session marker: %w", err)
	}

	log.Info(ctx, "store seeded", "admin", admin.ID(), "patients", SamplePatientCount)
	return nil
}

// samplePatient derives every field deterministically from the index, so the
// demo dataset is identical on every fresh installation.
func samplePatient(i int) docstore.Record {
	return docstore.Record{
		"full_name":      fmt.Sprintf("Sample Patient %d", i+1),
		"age":            25 + i*3,
		"status":         patientStatuses[i%len(patientStatuses)],
		"condition":      patientConditions[i%len(patientConditions)],
		"phone":          fmt.Sprintf("+1-555-01%02d", 10+i),
		"medical_record": fmt.Sprintf("MRN-%05d", 10000+i*7),
	}
}
