package browser

import (
	"context"
	"testing"
	"time"
)

func TestContainsNoMatch(t *testing.T) {
	pages := map[string]bool{
		`<td>No se encontraron resultados</td>`:      true,
		`<td>NO SE ENCONTRARON RESULTADOS</td>`:      true,
		`<table><td>GARCIA PEREZ, JUAN</td></table>`: false,
		``: false,
	}
	for page, want := range pages {
		if got := containsNoMatch([]byte(page)); got != want {
			t.Errorf("containsNoMatch(%q) = %v, want %v", page, got, want)
		}
	}
}

func TestResolve(t *testing.T) {
	tab := &LookupTab{cfg: TabConfig{
		BaseURL: "https://aplicaciones.cmp.org.pe/conoce_a_tu_medico/",
	}}

	cases := map[string]string{
		"index.php":                         "https://aplicaciones.cmp.org.pe/conoce_a_tu_medico/index.php",
		"datos-colegiado-detallado.php?i=3": "https://aplicaciones.cmp.org.pe/conoce_a_tu_medico/datos-colegiado-detallado.php?i=3",
		"/otra/ruta.php":                    "https://aplicaciones.cmp.org.pe/otra/ruta.php",
		"https://example.com/abs":           "https://example.com/abs",
	}
	for ref, want := range cases {
		got, err := tab.resolve(ref)
		if err != nil {
			t.Fatalf("resolve(%q): %v", ref, err)
		}
		if got != want {
			t.Errorf("resolve(%q) = %q, want %q", ref, got, want)
		}
	}
}

func TestKeyDelayBounds(t *testing.T) {
	for i := 0; i < 200; i++ {
		d := keyDelay()
		if d < keyDelayMin {
			t.Fatalf("delay %v below minimum", d)
		}
		if d > keyDelayMax+microPauseMax {
			t.Fatalf("delay %v above hesitation ceiling", d)
		}
	}
}

func TestTabConfigDefaults(t *testing.T) {
	var c TabConfig
	c.defaults()
	if c.NavTimeout != 60*time.Second {
		t.Errorf("NavTimeout = %v", c.NavTimeout)
	}
}

func TestSleepCtxCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Minute); err == nil {
		t.Error("expected context error")
	}
}
