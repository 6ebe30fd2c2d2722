package lcsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func ndjsonServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, line := range lines {
			fmt.Fprintln(w, line)
		}
	}))
}

func TestConeSearch_StreamNextAndSetID(t *testing.T) {
	srv := ndjsonServer(t,
		`{"status":"queued","message":"query accepted","result":{"setid":"set-9"}}`,
		`{"status":"running","message":"query running","result":{"setid":"set-9"}}`,
		`{"status":"ok","message":"query complete","result":{"setid":"set-9","nobjects":7}}`,
	)
	defer srv.Close()

	c := New(srv.URL)
	stream, err := c.ConeSearch(context.Background(), ConeRequest{Coordinates: "290 45", RadiusArcmin: 5})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	defer stream.Close()

	first, err := stream.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if first.Status != "queued" {
		t.Errorf("first status = %s", first.Status)
	}
	if stream.SetID() != "set-9" {
		t.Errorf("setid = %q, want set-9", stream.SetID())
	}

	final, err := stream.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if final.Status != "ok" || final.Result["nobjects"] != float64(7) {
		t.Errorf("final = %+v", final)
	}
}

func TestWait_StopsAtBackground(t *testing.T) {
	srv := ndjsonServer(t,
		`{"status":"queued","result":{"setid":"set-1"}}`,
		`{"status":"background","message":"continuing in background","result":{"setid":"set-1"}}`,
	)
	defer srv.Close()

	c := New(srv.URL)
	stream, err := c.ColumnSearch(context.Background(), ColumnRequest{
		Options: Options{Filter: "(mag lt 15)"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	defer stream.Close()

	final, err := stream.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if final.Status != "background" {
		t.Errorf("final status = %s", final.Status)
	}
}

func TestWait_TruncatedStream(t *testing.T) {
	srv := ndjsonServer(t)
	defer srv.Close()

	c := New(srv.URL)
	stream, err := c.FullTextSearch(context.Background(), FullTextRequest{Text: "RR Lyr"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	defer stream.Close()

	if _, err := stream.Wait(); err != io.ErrUnexpectedEOF {
		t.Errorf("got %v, want ErrUnexpectedEOF", err)
	}
}

func TestSubmit_RequestShape(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("authorization = %q", got)
		}
		fmt.Fprintln(w, `{"status":"ok","result":{"setid":"s"}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, WithToken("tok-1"))
	stream, err := c.XMatch(context.Background(), XMatchRequest{
		Upload:       "obj-1 10 10\n",
		RadiusArcsec: 3,
		Options:      Options{Collections: []string{"asas"}, Visibility: "unlisted"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	stream.Close()

	// embedded Options fields flatten into the top-level object
	if body["upload"] != "obj-1 10 10\n" || body["radius_arcsec"] != float64(3) {
		t.Errorf("body = %v", body)
	}
	if body["visibility"] != "unlisted" {
		t.Errorf("visibility = %v", body["visibility"])
	}
	if _, nested := body["Options"]; nested {
		t.Error("options were not inlined")
	}
}

func TestSubmit_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintln(w, `{"code":"filter_syntax","message":"filter syntax error in clause \"(mag near 10)\": unknown operator \"near\""}`)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.ColumnSearch(context.Background(), ColumnRequest{Options: Options{Filter: "(mag near 10)"}})
	if err == nil {
		t.Fatal("expected an error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Code != "filter_syntax" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestDataset_GetAndNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/sets/set-2":
			fmt.Fprintln(w, `{"setid":"set-2","status":"ok","nobjects":12,"visibility":"public",`+
				`"artifacts":{"csv":"/api/sets/set-2/csv"},`+
				`"preview":{"columns":["objectid"],"rows":[],"total":12}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintln(w, `{"code":"not_found","message":"not found"}`)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	ds, err := c.Dataset(context.Background(), "set-2")
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	if ds.Status != "ok" || ds.NObjects != 12 {
		t.Errorf("dataset = %+v", ds)
	}
	if ds.Preview == nil || ds.Preview.Total != 12 {
		t.Errorf("preview = %+v", ds.Preview)
	}

	_, err = c.Dataset(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Errorf("got %v, want a 404 APIError", err)
	}
}

func TestDownloadCSV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sets/set-3/csv" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		fmt.Fprintln(w, "collection,objectid")
		fmt.Fprintln(w, "asas,obj-1")
	}))
	defer srv.Close()

	c := New(srv.URL)
	rc, err := c.DownloadCSV(context.Background(), "set-3")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "collection,objectid\nasas,obj-1\n" {
		t.Errorf("body = %q", data)
	}
}
