package sandbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func jobeHandler(t *testing.T, runs func(spec map[string]any) (int, runResponse), puts map[string]bool) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /jobe/index.php/restapi/languages", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([][]string{{"python3", "3.10.6"}, {"c", "gcc 11.3"}})
	})
	mux.HandleFunc("POST /jobe/index.php/restapi/runs", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RunSpec map[string]any `json:"run_spec"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		status, resp := runs(body.RunSpec)
		w.WriteHeader(status)
		if status == http.StatusOK {
			json.NewEncoder(w).Encode(resp)
		}
	})
	mux.HandleFunc("PUT /jobe/index.php/restapi/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		if puts != nil {
			puts[r.PathValue("id")] = true
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func okResponse(stdout string) func(map[string]any) (int, runResponse) {
	return func(map[string]any) (int, runResponse) {
		return http.StatusOK, runResponse{Outcome: int(ResultSuccess), Stdout: stdout}
	}
}

func newTestJobe(server string) *Jobe {
	return NewJobe(JobeConfig{Server: server})
}

func TestExecuteSuccess(t *testing.T) {
	var seen map[string]any
	srv := httptest.NewServer(jobeHandler(t, func(spec map[string]any) (int, runResponse) {
		seen = spec
		return http.StatusOK, runResponse{Outcome: int(ResultSuccess), Stdout: "42\n"}
	}, nil))
	defer srv.Close()

	j := newTestJobe(srv.URL)
	defer j.Close()

	res := j.Execute(context.Background(), "print(6*7)", "Python3", "", nil, nil)
	require.Equal(t, ErrOK, res.Error)
	require.Equal(t, ResultSuccess, res.Result)
	require.Equal(t, "42\n", res.Stdout)

	require.Equal(t, "python3", seen["language_id"], "language is lowercased")
	require.Equal(t, "__tester__.python3", seen["sourcefilename"])
}

func TestExecuteAppendsStdinNewline(t *testing.T) {
	var seen map[string]any
	srv := httptest.NewServer(jobeHandler(t, func(spec map[string]any) (int, runResponse) {
		seen = spec
		return http.StatusOK, runResponse{Outcome: int(ResultSuccess)}
	}, nil))
	defer srv.Close()

	j := newTestJobe(srv.URL)
	defer j.Close()

	j.Execute(context.Background(), "x", "python3", "3 4", nil, nil)
	require.Equal(t, "3 4\n", seen["input"])

	j.Execute(context.Background(), "x", "python3", "3 4\n", nil, nil)
	require.Equal(t, "3 4\n", seen["input"])
}

func TestExecuteStderrMeansRuntimeError(t *testing.T) {
	srv := httptest.NewServer(jobeHandler(t, func(map[string]any) (int, runResponse) {
		return http.StatusOK, runResponse{
			Outcome: int(ResultSuccess),
			Stdout:  "partial",
			Stderr:  "Traceback (most recent call last)",
		}
	}, nil))
	defer srv.Close()

	j := newTestJobe(srv.URL)
	defer j.Close()

	res := j.Execute(context.Background(), "x", "python3", "", nil, nil)
	require.Equal(t, ErrOK, res.Error)
	require.Equal(t, ResultRuntimeError, res.Result)
	require.Equal(t, "partial", res.Stdout)
}

func TestExecuteUploadsFilesOnNotFound(t *testing.T) {
	puts := map[string]bool{}
	attempts := 0
	srv := httptest.NewServer(jobeHandler(t, func(map[string]any) (int, runResponse) {
		attempts++
		if attempts == 1 {
			return http.StatusNotFound, runResponse{}
		}
		return http.StatusOK, runResponse{Outcome: int(ResultSuccess), Stdout: "done"}
	}, puts))
	defer srv.Close()

	j := newTestJobe(srv.URL)
	defer j.Close()

	files := map[string][]byte{"data.txt": []byte("1 2 3\n")}
	res := j.Execute(context.Background(), "x", "python3", "", files, nil)
	require.Equal(t, ErrOK, res.Error)
	require.Equal(t, "done", res.Stdout)
	require.Equal(t, 2, attempts, "run is retried once after uploading")
	require.Len(t, puts, 1)
	require.True(t, puts[contentID([]byte("1 2 3\n"))], "files are uploaded under their content hash")
}

func TestExecuteStatusMapping(t *testing.T) {
	for status, kind := range map[int]ErrorKind{
		http.StatusBadRequest:          ErrBadParameter,
		http.StatusUnauthorized:        ErrRateLimited,
		http.StatusForbidden:           ErrAuth,
		http.StatusInternalServerError: ErrUnknownServer,
	} {
		srv := httptest.NewServer(jobeHandler(t, func(map[string]any) (int, runResponse) {
			return status, runResponse{}
		}, nil))

		j := newTestJobe(srv.URL)
		res := j.Execute(context.Background(), "x", "python3", "", nil, nil)
		require.Equal(t, kind, res.Error, "status %d", status)
		j.Close()
		srv.Close()
	}
}

func TestExecuteServerOverloadOutcome(t *testing.T) {
	srv := httptest.NewServer(jobeHandler(t, func(map[string]any) (int, runResponse) {
		return http.StatusOK, runResponse{Outcome: int(ResultServerOverload)}
	}, nil))
	defer srv.Close()

	j := newTestJobe(srv.URL)
	defer j.Close()

	res := j.Execute(context.Background(), "x", "python3", "", nil, nil)
	require.Equal(t, ErrServerOverload, res.Error)
}

func TestExecuteParams(t *testing.T) {
	var seen map[string]any
	srv := httptest.NewServer(jobeHandler(t, func(spec map[string]any) (int, runResponse) {
		seen = spec
		return http.StatusOK, runResponse{Outcome: int(ResultSuccess)}
	}, nil))
	defer srv.Close()

	j := newTestJobe(srv.URL)
	defer j.Close()

	j.Execute(context.Background(), "x", "python3", "", nil, &Params{
		CPUTimeSecs:    5,
		MemoryLimitMB:  256,
		SourceFilename: "prog.py",
		Extra:          map[string]any{"streamsize": 4},
	})

	params := seen["parameters"].(map[string]any)
	require.EqualValues(t, 5, params["cputime"])
	require.EqualValues(t, 256, params["memorylimit"])
	require.EqualValues(t, 4, params["streamsize"])
	require.Equal(t, "prog.py", seen["sourcefilename"])
}

func TestLanguagesCachedAndChecked(t *testing.T) {
	srv := httptest.NewServer(jobeHandler(t, okResponse(""), nil))
	defer srv.Close()

	j := newTestJobe(srv.URL)
	defer j.Close()

	langs, err := j.Languages(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"python3", "c"}, langs)

	res := j.Execute(context.Background(), "x", "cobol", "", nil, nil)
	require.Equal(t, ErrUnsupportedLanguage, res.Error)

	res = j.Execute(context.Background(), "x", "C", "", nil, nil)
	require.Equal(t, ErrOK, res.Error)
}

func TestExecuteFetchesLanguagesLazily(t *testing.T) {
	runs := 0
	srv := httptest.NewServer(jobeHandler(t, func(map[string]any) (int, runResponse) {
		runs++
		return http.StatusOK, runResponse{Outcome: int(ResultSuccess)}
	}, nil))
	defer srv.Close()

	j := newTestJobe(srv.URL)
	defer j.Close()

	res := j.Execute(context.Background(), "x", "cobol", "", nil, nil)
	require.Equal(t, ErrUnsupportedLanguage, res.Error)
	require.Zero(t, runs, "unsupported languages are rejected before any run")

	res = j.Execute(context.Background(), "x", "python3", "", nil, nil)
	require.Equal(t, ErrOK, res.Error)
	require.Equal(t, 1, runs)
}

func TestFilterFilePaths(t *testing.T) {
	in := `File "/home/jobe/runs/jobe_x7Ab42/prog", line 3`
	require.Equal(t, `File "prog", line 3`, filterFilePaths(in))
}

func TestSourceFilenameJavaMainClass(t *testing.T) {
	src := `
import java.util.*;

public class Checker {
    public static void main(String[] args) {
        System.out.println("hi");
    }
}
`
	require.Equal(t, "Checker.java", sourceFilename(src, "java"))
	require.Equal(t, "prog.java", sourceFilename("class x {}", "java"))
	require.Equal(t, "__tester__.cpp", sourceFilename("int main() {}", "cpp"))
}

func TestServerRoutingIsStable(t *testing.T) {
	j := NewJobe(JobeConfig{Server: "jobe1.example.com; jobe2.example.com"})
	defer j.Close()

	first := j.serverFor("job-abc")
	for i := 0; i < 10; i++ {
		require.Equal(t, first, j.serverFor("job-abc"))
	}
	require.Contains(t, first, "/jobe/index.php/restapi")
	require.Contains(t, first, "http://")
}
