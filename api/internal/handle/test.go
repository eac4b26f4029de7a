package handle

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/httplog/v2"

	"homework-mentor/api/internal/llm"
)

const statusRunning = "Backend is running"

// Test is a smoke check of the default engine. It always answers 200.
func (h *Handle) Test(w http.ResponseWriter, r *http.Request) {
	out := map[string]string{"status": statusRunning}

	eng := h.engs.Default()
	if eng == nil {
		out["openai_error"] = "no engine configured"
		writeJSON(w, http.StatusOK, out)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()
	sol, err := eng.Solve(ctx, llm.Task{Text: "What is 2+2?", Subject: "math", Language: "en"})
	if err != nil {
		httplog.LogEntry(r.Context()).Warn("engine smoke test failed", "engine", eng.Name(), "err", err)
		out["openai_error"] = err.Error()
		writeJSON(w, http.StatusOK, out)
		return
	}
	out["openai_test"] = "OpenAI connection successful"
	out["test_response"] = sol.Text
	writeJSON(w, http.StatusOK, out)
}
