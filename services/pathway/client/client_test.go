// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/envitrace/envitrace/pkg/logging"
	"github.com/envitrace/envitrace/services/pathway/chem"
	"github.com/envitrace/envitrace/services/pathway/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransport(t *testing.T, handler http.Handler) (*Transport, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	transport, err := NewTransport(TransportConfig{BaseURL: srv.URL, Logger: logging.Discard()})
	require.NoError(t, err)
	return transport, srv
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := OpenCache(CacheConfig{InMemory: true}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestTransport_Login(t *testing.T) {
	var gotMethod, gotUser string
	transport, _ := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotMethod = r.PostFormValue("hiddenMethod")
		gotUser = r.PostFormValue("loginusername")
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc"})
	}))

	require.NoError(t, transport.Login(context.Background(), "alice", "secret"))
	assert.Equal(t, "login", gotMethod)
	assert.Equal(t, "alice", gotUser)
}

func TestTransport_ErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, ErrNotFound},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusInternalServerError, ErrTransient},
		{http.StatusBadGateway, ErrTransient},
		{http.StatusTooManyRequests, ErrTransient},
	}
	for _, tc := range cases {
		transport, _ := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))
		var out map[string]any
		err := transport.GetJSON(context.Background(), "thing", nil, &out)
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
	}
}

func TestTransport_ConnectionErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	transport, err := NewTransport(TransportConfig{BaseURL: srv.URL, Logger: logging.Discard()})
	require.NoError(t, err)
	srv.Close()

	var out map[string]any
	err = transport.GetJSON(context.Background(), "thing", nil, &out)
	assert.True(t, IsRetryable(err), "got %v", err)
}

func structureHandler(t *testing.T, hits *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++
		writeJSON(t, w, map[string]any{
			"id":     "s-1",
			"smiles": "CCO",
			"name":   "ethanol",
		})
	})
}

func TestResolver_SessionIdentity(t *testing.T) {
	hits := 0
	transport, _ := newTestTransport(t, structureHandler(t, &hits))
	resolver := NewResolver(transport, nil, logging.Discard())

	first, err := resolver.ResolveStructure(context.Background(), "structure/s-1")
	require.NoError(t, err)
	second, err := resolver.ResolveStructure(context.Background(), "structure/s-1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, hits)
	assert.Equal(t, "ethanol", first.Name)
	assert.Equal(t, "C2H6O", first.Formula)

	// A new session resolves its own instance.
	other, err := resolver.NewSession().ResolveStructure(context.Background(), "structure/s-1")
	require.NoError(t, err)
	assert.NotSame(t, first, other)
	assert.Equal(t, 2, hits)
}

func TestResolver_ConcurrentResolvesCollapse(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	transport, _ := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		writeJSON(t, w, map[string]any{"id": "s-1", "smiles": "CCO"})
	}))
	resolver := NewResolver(transport, nil, logging.Discard())

	const workers = 8
	results := make([]*chem.Structure, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := resolver.ResolveStructure(context.Background(), "structure/s-1")
			assert.NoError(t, err)
			results[i] = s
		}()
	}
	wg.Wait()

	for _, s := range results[1:] {
		assert.Same(t, results[0], s)
	}
	mu.Lock()
	assert.LessOrEqual(t, hits, workers)
	mu.Unlock()
}

func TestResolver_CacheServesAcrossSessions(t *testing.T) {
	hits := 0
	transport, _ := newTestTransport(t, structureHandler(t, &hits))
	cache := newTestCache(t)
	resolver := NewResolver(transport, cache, logging.Discard())

	_, err := resolver.ResolveStructure(context.Background(), "structure/s-1")
	require.NoError(t, err)
	require.Equal(t, 1, hits)

	_, err = resolver.NewSession().ResolveStructure(context.Background(), "structure/s-1")
	require.NoError(t, err)
	assert.Equal(t, 1, hits, "second session should be served from the cache")
}

func TestResolver_TransientErrorIsNotCached(t *testing.T) {
	hits := 0
	transport, _ := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(t, w, map[string]any{"id": "s-1", "smiles": "CCO"})
	}))
	resolver := NewResolver(transport, newTestCache(t), logging.Discard())

	_, err := resolver.ResolveStructure(context.Background(), "structure/s-1")
	require.ErrorIs(t, err, ErrTransient)

	s, err := resolver.ResolveStructure(context.Background(), "structure/s-1")
	require.NoError(t, err)
	assert.Equal(t, "CCO", s.SMILES)
	assert.Equal(t, 2, hits)
}

func TestResolver_ResolveCompositeRule(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rule/parent", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{
			"id": "rule/parent", "name": "oxidative chain",
			"identifier":      rules.KindSequential.String(),
			"includedRuleIds": []string{"rule/child-a", "rule/child-b"},
		})
	})
	mux.HandleFunc("/rule/child-a", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{
			"id": "rule/child-a", "name": "hydroxylation",
			"identifier": rules.KindSimple.String(), "smirks": "C>>CO",
		})
	})
	mux.HandleFunc("/rule/child-b", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{
			"id": "rule/child-b", "name": "oxidation",
			"identifier": rules.KindSimple.String(), "smirks": "CO>>C=O",
		})
	})
	transport, _ := newTestTransport(t, mux)
	resolver := NewResolver(transport, nil, logging.Discard())

	rule, err := resolver.ResolveRule(context.Background(), "rule/parent")
	require.NoError(t, err)
	assert.Equal(t, rules.KindSequential, rule.Kind)
	require.Len(t, rule.Children(), 2)
	assert.Equal(t, "rule/child-a", rule.Children()[0].ID)

	// Children land in the same session arena.
	child, err := resolver.ResolveRule(context.Background(), "rule/child-a")
	require.NoError(t, err)
	assert.Same(t, rule.Children()[0], child)
}

func TestResolver_ResolveCompound(t *testing.T) {
	transport, _ := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{
			"id":   "compound/c-1",
			"name": "ethanol",
			"structures": []map[string]any{
				{"id": "s-1", "smiles": "CCO"},
				{"id": "s-2", "smiles": "[CH3][CH2][OH]", "name": "explicit form"},
			},
			"defaultStructureId": "s-2",
		})
	}))
	resolver := NewResolver(transport, nil, logging.Discard())

	compound, err := resolver.ResolveCompound(context.Background(), "compound/c-1")
	require.NoError(t, err)
	assert.Equal(t, "compound/c-1", compound.ID)
	require.Len(t, compound.Structures(), 2)
	assert.Equal(t, "s-2", compound.DefaultStructure().ID)
}

func TestResolver_ListScopesByParent(t *testing.T) {
	var gotPath string
	transport, _ := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		writeJSON(t, w, map[string]any{
			"objects": []map[string]any{
				{"id": "rule/r-1", "name": "hydroxylation"},
				{"id": "rule/r-2", "name": "ester hydrolysis"},
			},
		})
	}))
	resolver := NewResolver(transport, nil, logging.Discard())

	refs, err := resolver.List(context.Background(), "package/p-1", "rule")
	require.NoError(t, err)
	assert.Equal(t, "/package/p-1/rule", gotPath)
	require.Len(t, refs, 2)
	assert.Equal(t, "rule/r-1", refs[0].ID)

	refs, err = resolver.List(context.Background(), "", "rule")
	require.NoError(t, err)
	assert.Equal(t, "/rule", gotPath)
	require.Len(t, refs, 2)
}

func TestJobChannel_RoundTrip(t *testing.T) {
	var submittedSMILES, deletedMethod string
	mux := http.NewServeMux()
	mux.HandleFunc("/pathway", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		submittedSMILES = r.PostFormValue("smiles")
		w.Header().Set("Location", "pathway/job-1")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/pathway/job-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			require.NoError(t, r.ParseForm())
			deletedMethod = r.PostFormValue("hiddenMethod")
			return
		}
		require.Contains(t, r.URL.RawQuery, "status")
		writeJSON(t, w, map[string]any{
			"completed": "false",
			"revision":  1,
			"nodes":     []map[string]any{{"id": "n-1", "smiles": "CCO"}},
		})
	})
	transport, _ := newTestTransport(t, mux)
	channel := NewJobChannel(transport, logging.Discard())

	jobID, err := channel.Submit(context.Background(), chem.MustStructure("CCO"), "setting-1")
	require.NoError(t, err)
	assert.Equal(t, "pathway/job-1", jobID)
	assert.Equal(t, "CCO", submittedSMILES)

	snapshot, err := channel.FetchSnapshot(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, "false", snapshot.Completed)
	require.Len(t, snapshot.Nodes, 1)

	require.NoError(t, channel.Delete(context.Background(), jobID))
	assert.Equal(t, "DELETE", deletedMethod)
}

func TestModelSource_Classify(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/model/m-1/classify", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "CCO", r.URL.Query().Get("smiles"))
		writeJSON(t, w, map[string]any{
			"scores": []map[string]any{
				{"ruleId": "rule/r-1", "score": 0.8, "priority": 1},
			},
		})
	})
	mux.HandleFunc("/rule/r-1", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{
			"id": "rule/r-1", "name": "hydroxylation",
			"identifier": rules.KindSimple.String(), "smirks": "C>>CO",
		})
	})
	transport, _ := newTestTransport(t, mux)
	resolver := NewResolver(transport, nil, logging.Discard())
	source := NewModelSource(transport, resolver, logging.Discard())

	scored, err := source.Classify(context.Background(), "model/m-1", chem.MustStructure("CCO"))
	require.NoError(t, err)
	require.Len(t, scored, 1)
	assert.Equal(t, "rule/r-1", scored[0].Rule.ID)
	assert.InDelta(t, 0.8, scored[0].Score, 1e-9)
}
