package database

import "testing"

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantName    string
		wantOK      bool
	}{
		{
			name:        "up migration",
			filename:    "20250301_000000_initial_schema.up.sql",
			wantVersion: "20250301_000000",
			wantName:    "initial_schema",
			wantOK:      true,
		},
		{
			name:     "down migration is ignored by the runner",
			filename: "20250301_000000_initial_schema.down.sql",
			wantOK:   false,
		},
		{
			name:     "not sql",
			filename: "README.md",
			wantOK:   false,
		},
		{
			name:     "missing direction suffix",
			filename: "20250301_000000_initial_schema.sql",
			wantOK:   false,
		},
		{
			name:     "missing description",
			filename: "20250301_000000.up.sql",
			wantOK:   false,
		},
		{
			name:     "missing version",
			filename: "schema.up.sql",
			wantOK:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, name, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("parseMigrationFilename(%q) ok = %v, want %v", tt.filename, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion {
				t.Errorf("version = %q, want %q", version, tt.wantVersion)
			}
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
		})
	}
}

func TestLoadMigrationsOrdering(t *testing.T) {
	// Without the repository's embed registration (this package does not
	// import it) loadMigrations returns nothing; with it, the versions
	// must come back strictly ascending. Both states satisfy the
	// invariant checked here.
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i-1].Version >= migrations[i].Version {
			t.Errorf("migrations out of order: %s before %s",
				migrations[i-1].Version, migrations[i].Version)
		}
	}
}
