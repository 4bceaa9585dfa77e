package internal

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lychee-technology/viewplane"
)

// Engine bundles the materializer, assembler, subscription registry and
// change router behind the ViewEngine contract. It is an explicitly owned
// service object injected into request handlers, never a process-wide
// singleton, so tests can run isolated instances side by side.
type Engine struct {
	subs   *Registry
	mat    *Materializer
	asm    *Assembler
	router *ChangeRouter
	sender viewplane.Sender
}

// NewEngine wires an engine from its parts.
func NewEngine(subs *Registry, mat *Materializer, asm *Assembler, router *ChangeRouter, sender viewplane.Sender) *Engine {
	return &Engine{
		subs:   subs,
		mat:    mat,
		asm:    asm,
		router: router,
		sender: sender,
	}
}

func (e *Engine) MaterializeForm(ctx context.Context, formID uuid.UUID, cc viewplane.ClientContext) (*viewplane.MaterializedForm, error) {
	return e.mat.Materialize(ctx, formID, cc)
}

func (e *Engine) GenerateScreen(ctx context.Context, screenID uuid.UUID, cc viewplane.ClientContext) (*viewplane.Screen, error) {
	return e.asm.GenerateScreen(ctx, screenID, cc)
}

func (e *Engine) GenerateLiveScreen(ctx context.Context, screenID uuid.UUID, cc viewplane.ClientContext) (*viewplane.Screen, error) {
	return e.asm.GenerateLiveScreen(ctx, screenID, cc)
}

func (e *Engine) AssembleDynamicScreens(ctx context.Context, cc viewplane.ClientContext) []*viewplane.PanelInfo {
	return e.asm.AssembleDynamicScreens(ctx, cc)
}

func (e *Engine) RegisterNode(nodeID, elementID, ownerID, dataItem string, hasLiveSub *bool) bool {
	return e.subs.RegisterNode(nodeID, elementID, ownerID, dataItem, hasLiveSub)
}

func (e *Engine) UpdateHeartbeat(nodeID string) {
	e.subs.UpdateHeartbeat(nodeID)
}

func (e *Engine) SweepStale(now time.Time) int {
	return e.subs.SweepStale(now)
}

func (e *Engine) PropertyChanged(ownerID, property string, value any) {
	e.router.PropertyChanged(ownerID, property, value)
}

// NotifyClient pushes a toast-style message to the originating node.
func (e *Engine) NotifyClient(n viewplane.Notification) error {
	return e.sender.Send(n.NodeID, "notify", n)
}

// UnsubscribeNode removes a disconnecting node's interests immediately
// instead of waiting for the sweeper.
func (e *Engine) UnsubscribeNode(nodeID string) {
	e.subs.UnsubscribeNode(nodeID)
}

// Registry exposes the subscription registry for server wiring that runs
// the background sweeper.
func (e *Engine) Registry() *Registry {
	return e.subs
}
