package pkgmanager

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/a-h/provision/version"
)

func TestParsePipIndexOutput(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    []string
		wantOK  bool
	}{
		{
			name: "modern multi-line form",
			out: "WARNING: pip index is currently an experimental command.\n" +
				"requests (2.31.0)\n" +
				"Available versions: 2.31.0, 2.30.0, 2.29.0\n" +
				"  INSTALLED: 2.28.0\n" +
				"  LATEST:    2.31.0\n",
			want:   []string{"2.29.0", "2.30.0", "2.31.0"},
			wantOK: true,
		},
		{
			name:   "legacy single-line form",
			out:    "Could not find a version that satisfies the requirement requests==999 (from versions: 2.29.0, 2.30.0)\n",
			want:   []string{"2.29.0", "2.30.0"},
			wantOK: true,
		},
		{
			name:   "unparseable output",
			out:    "no useful information here\n",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			versions, _, ok := parsePipIndexOutput(tt.out)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			var got []string
			for _, v := range versions {
				got = append(got, v.String())
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("versions mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPipFindCompatibleVersion(t *testing.T) {
	p := &Pip{log: discardLogger(), cache: newCache(0)}
	p.run = func(ctx context.Context, name string) ([]byte, error) {
		return []byte("Available versions: 2.31.0, 2.30.0, 2.29.0\n"), nil
	}

	got, ok := p.FindCompatibleVersion(context.Background(), "requests", []version.Constraint{
		version.MustParseConstraint(">=2.29.0"),
		version.MustParseConstraint("<2.31.0"),
	})
	if !ok {
		t.Fatal("expected a compatible version to be found")
	}
	if got.String() != "2.30.0" {
		t.Errorf("got %s, want 2.30.0", got)
	}
}
