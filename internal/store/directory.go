package store

import (
	"context"
)

// PatientExists reports whether a patient record resolves
func (r *repo) PatientExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.get(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM patients WHERE id = ?)", id)
	return exists, err
}

// DoctorExists reports whether a doctor record resolves
func (r *repo) DoctorExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.get(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM doctors WHERE id = ?)", id)
	return exists, err
}

// AddPatient inserts a minimal patient reference row
func (r *repo) AddPatient(ctx context.Context, name string) (int64, error) {
	return r.insert(ctx, "INSERT INTO patients (name) VALUES (?)", name)
}

// AddDoctor inserts a minimal doctor reference row
func (r *repo) AddDoctor(ctx context.Context, name string) (int64, error) {
	return r.insert(ctx, "INSERT INTO doctors (name) VALUES (?)", name)
}
