package jobapplication

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const applicationColumns = `
	id, user_id, company, position, location, status, applied_date,
	next_action_date, source, job_posting_url, expected_salary, notes,
	created_at, updated_at
`

func (r *Repository) List(ctx context.Context, userID string, filter ListFilter) ([]JobApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM job_applications WHERE user_id = $1`
	args := []any{userID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		query += fmt.Sprintf(" AND (company ILIKE $%d OR position ILIKE $%d)", len(args), len(args))
	}
	if filter.From != nil {
		args = append(args, filter.From.UTC())
		query += fmt.Sprintf(" AND applied_date >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, filter.To.UTC())
		query += fmt.Sprintf(" AND applied_date <= $%d", len(args))
	}
	query += " ORDER BY applied_date DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query job applications: %w", err)
	}
	defer rows.Close()

	applications := make([]JobApplication, 0)
	index := make(map[string]int)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		index[app.ID] = len(applications)
		applications = append(applications, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job applications: %w", err)
	}

	if len(applications) == 0 {
		return applications, nil
	}

	notes, err := r.notesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, note := range notes {
		if i, ok := index[note.JobApplicationID]; ok {
			applications[i].Timeline = append(applications[i].Timeline, note)
		}
	}

	return applications, nil
}

func (r *Repository) GetByID(ctx context.Context, userID, id string) (JobApplication, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+applicationColumns+`
		FROM job_applications
		WHERE id = $1 AND user_id = $2
	`, id, userID)

	app, err := scanApplication(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return JobApplication{}, err
		}
		return JobApplication{}, fmt.Errorf("query job application: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, job_application_id, content, type, created_at
		FROM application_notes
		WHERE job_application_id = $1
		ORDER BY created_at ASC
	`, id)
	if err != nil {
		return JobApplication{}, fmt.Errorf("query application notes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return JobApplication{}, err
		}
		app.Timeline = append(app.Timeline, note)
	}
	if err := rows.Err(); err != nil {
		return JobApplication{}, fmt.Errorf("iterate application notes: %w", err)
	}

	return app, nil
}

func (r *Repository) Create(ctx context.Context, userID string, input ApplicationInput) (JobApplication, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return JobApplication{}, fmt.Errorf("generate application id: %w", err)
	}

	now := time.Now().UTC()
	app := JobApplication{
		ID:             id.String(),
		UserID:         userID,
		Company:        input.Company,
		Position:       input.Position,
		Location:       input.Location,
		Status:         input.Status,
		AppliedDate:    input.AppliedDate.UTC(),
		NextActionDate: input.NextActionDate,
		Source:         input.Source,
		JobPostingURL:  input.JobPostingURL,
		ExpectedSalary: input.ExpectedSalary,
		Notes:          input.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
		Timeline:       []Note{},
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO job_applications (
			id, user_id, company, position, location, status, applied_date,
			next_action_date, source, job_posting_url, expected_salary, notes,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, app.ID, app.UserID, app.Company, app.Position, app.Location, app.Status, app.AppliedDate,
		nullTime(app.NextActionDate), nullString(app.Source), nullString(app.JobPostingURL),
		nullFloat(app.ExpectedSalary), nullString(app.Notes), app.CreatedAt, app.UpdatedAt)
	if err != nil {
		return JobApplication{}, fmt.Errorf("insert job application: %w", err)
	}

	return app, nil
}

func (r *Repository) Update(ctx context.Context, userID, id string, input ApplicationInput) (JobApplication, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE job_applications
		SET company = $3, position = $4, location = $5, status = $6, applied_date = $7,
			next_action_date = $8, source = $9, job_posting_url = $10,
			expected_salary = $11, notes = $12, updated_at = $13
		WHERE id = $1 AND user_id = $2
		RETURNING `+applicationColumns+`
	`, id, userID, input.Company, input.Position, input.Location, input.Status, input.AppliedDate.UTC(),
		nullTime(input.NextActionDate), nullString(input.Source), nullString(input.JobPostingURL),
		nullFloat(input.ExpectedSalary), nullString(input.Notes), time.Now().UTC())

	app, err := scanApplication(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return JobApplication{}, err
		}
		return JobApplication{}, fmt.Errorf("update job application: %w", err)
	}

	return app, nil
}

func (r *Repository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM job_applications
		WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("delete job application: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (r *Repository) AddNote(ctx context.Context, userID, applicationID string, input NoteInput) (Note, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Note{}, fmt.Errorf("generate note id: %w", err)
	}

	note := Note{
		ID:               id.String(),
		JobApplicationID: applicationID,
		Content:          input.Content,
		Type:             input.Type,
		CreatedAt:        time.Now().UTC(),
	}

	// INSERT ... SELECT enforces row ownership in the same statement.
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO application_notes (id, job_application_id, content, type, created_at)
		SELECT $1, a.id, $3, $4, $5
		FROM job_applications a
		WHERE a.id = $2 AND a.user_id = $6
	`, note.ID, applicationID, note.Content, nullString(note.Type), note.CreatedAt, userID)
	if err != nil {
		return Note{}, fmt.Errorf("insert application note: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return Note{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return Note{}, sql.ErrNoRows
	}

	return note, nil
}

func (r *Repository) DeleteNote(ctx context.Context, userID, applicationID, noteID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM application_notes n
		USING job_applications a
		WHERE n.id = $1
		  AND n.job_application_id = $2
		  AND a.id = n.job_application_id
		  AND a.user_id = $3
	`, noteID, applicationID, userID)
	if err != nil {
		return fmt.Errorf("delete application note: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (r *Repository) notesForUser(ctx context.Context, userID string) ([]Note, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT n.id, n.job_application_id, n.content, n.type, n.created_at
		FROM application_notes n
		JOIN job_applications a ON a.id = n.job_application_id
		WHERE a.user_id = $1
		ORDER BY n.created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user notes: %w", err)
	}
	defer rows.Close()

	notes := make([]Note, 0)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user notes: %w", err)
	}

	return notes, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (JobApplication, error) {
	var app JobApplication
	var nextAction sql.NullTime
	var source, postingURL, notes sql.NullString
	var salary sql.NullFloat64

	err := row.Scan(
		&app.ID, &app.UserID, &app.Company, &app.Position, &app.Location, &app.Status,
		&app.AppliedDate, &nextAction, &source, &postingURL, &salary, &notes,
		&app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return JobApplication{}, err
		}
		return JobApplication{}, fmt.Errorf("scan job application: %w", err)
	}

	if nextAction.Valid {
		value := nextAction.Time.UTC()
		app.NextActionDate = &value
	}
	app.Source = source.String
	app.JobPostingURL = postingURL.String
	if salary.Valid {
		app.ExpectedSalary = &salary.Float64
	}
	app.Notes = notes.String
	app.Timeline = []Note{}

	return app, nil
}

func scanNote(row rowScanner) (Note, error) {
	var note Note
	var noteType sql.NullString

	if err := row.Scan(&note.ID, &note.JobApplicationID, &note.Content, &noteType, &note.CreatedAt); err != nil {
		return Note{}, fmt.Errorf("scan application note: %w", err)
	}
	note.Type = noteType.String

	return note, nil
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC()
}

func nullFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}
