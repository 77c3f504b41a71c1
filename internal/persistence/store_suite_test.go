package persistence

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/petrijr/statum/pkg/api"
)

// StoreSuite is the behaviour every Store backend must share. Backend test
// files run it with their own constructor.
type StoreSuite struct {
	suite.Suite
	newStore func() Store
	store    Store
	ctx      context.Context
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore()
}

func (s *StoreSuite) record(metadata map[string]string) MachineRecord {
	return MachineRecord{
		ID:            "m-" + uuid.NewString(),
		SchematicName: "door",
		Schematic:     []byte("schematic-bytes"),
		InitialState:  []byte("closed"),
		Metadata:      metadata,
		CommitTag:     uuid.NewString(),
		CreatedAt:     time.Unix(1700000000, 42).UTC(),
	}
}

func (s *StoreSuite) update(expected string, state, input string) StateUpdate {
	return StateUpdate{
		State:             []byte(state),
		Input:             []byte(input),
		Parameter:         "p",
		ExpectedCommitTag: expected,
		NewCommitTag:      uuid.NewString(),
		UpdatedAt:         time.Unix(1700000100, 7).UTC(),
	}
}

func (s *StoreSuite) TestCreateAndGetState() {
	rec := s.record(map[string]string{"owner": "ops"})

	created, err := s.store.CreateMachine(s.ctx, rec)
	s.Require().NoError(err)
	s.Equal(rec.ID, created.MachineID)
	s.Equal(rec.CommitTag, created.CommitTag)

	got, err := s.store.GetMachineState(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal([]byte("closed"), got.State)
	s.Nil(got.Input, "initial state has no input")
	s.Empty(got.Parameter)
	s.Equal(rec.CommitTag, got.CommitTag)
	s.True(rec.CreatedAt.Equal(got.UpdatedAt), "got %s", got.UpdatedAt)
}

func (s *StoreSuite) TestCreateDuplicate() {
	rec := s.record(nil)
	_, err := s.store.CreateMachine(s.ctx, rec)
	s.Require().NoError(err)

	_, err = s.store.CreateMachine(s.ctx, rec)
	s.ErrorIs(err, api.ErrMachineExists)
}

func (s *StoreSuite) TestMetadataAndSchematic() {
	rec := s.record(map[string]string{"a": "1", "b": "2"})
	_, err := s.store.CreateMachine(s.ctx, rec)
	s.Require().NoError(err)

	md, err := s.store.GetMachineMetadata(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(rec.Metadata, md)

	data, err := s.store.GetMachineSchematic(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(rec.Schematic, data)

	bare := s.record(nil)
	_, err = s.store.CreateMachine(s.ctx, bare)
	s.Require().NoError(err)
	md, err = s.store.GetMachineMetadata(s.ctx, bare.ID)
	s.Require().NoError(err)
	s.NotNil(md)
	s.Empty(md)
}

func (s *StoreSuite) TestSetStateCompareAndSwap() {
	rec := s.record(nil)
	_, err := s.store.CreateMachine(s.ctx, rec)
	s.Require().NoError(err)

	upd := s.update(rec.CommitTag, "opened", "open")
	next, err := s.store.SetMachineState(s.ctx, rec.ID, upd)
	s.Require().NoError(err)
	s.Equal(upd.NewCommitTag, next.CommitTag)

	got, err := s.store.GetMachineState(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal([]byte("opened"), got.State)
	s.Equal([]byte("open"), got.Input)
	s.Equal("p", got.Parameter)
	s.Equal(upd.NewCommitTag, got.CommitTag)
	s.True(upd.UpdatedAt.Equal(got.UpdatedAt))

	// The tag the first update consumed is now stale.
	_, err = s.store.SetMachineState(s.ctx, rec.ID, s.update(rec.CommitTag, "closed", "close"))
	s.ErrorIs(err, api.ErrConcurrencyConflict)

	got, err = s.store.GetMachineState(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal([]byte("opened"), got.State, "a rejected write must not change the state")
}

func (s *StoreSuite) TestSetStateMissingMachine() {
	_, err := s.store.SetMachineState(s.ctx, "missing-"+uuid.NewString(), s.update("x", "a", "b"))
	s.ErrorIs(err, api.ErrMachineNotFound)
}

func (s *StoreSuite) TestConcurrentSetStateHasOneWinner() {
	rec := s.record(nil)
	_, err := s.store.CreateMachine(s.ctx, rec)
	s.Require().NoError(err)

	const writers = 8
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.SetMachineState(s.ctx, rec.ID, s.update(rec.CommitTag, "opened", "open"))
			switch {
			case err == nil:
				wins.Add(1)
			case api.KindOf(err) == api.KindConcurrencyConflict:
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(writers-1), conflicts.Load())
}

func (s *StoreSuite) TestDeleteMachine() {
	rec := s.record(nil)
	_, err := s.store.CreateMachine(s.ctx, rec)
	s.Require().NoError(err)

	s.Require().NoError(s.store.DeleteMachine(s.ctx, rec.ID))

	_, err = s.store.GetMachineState(s.ctx, rec.ID)
	s.ErrorIs(err, api.ErrMachineNotFound)
	_, err = s.store.GetMachineMetadata(s.ctx, rec.ID)
	s.ErrorIs(err, api.ErrMachineNotFound)
	_, err = s.store.GetMachineSchematic(s.ctx, rec.ID)
	s.ErrorIs(err, api.ErrMachineNotFound)
	s.ErrorIs(s.store.DeleteMachine(s.ctx, rec.ID), api.ErrMachineNotFound)
}

func (s *StoreSuite) TestSchematics() {
	name := "door-" + uuid.NewString()

	_, err := s.store.GetSchematic(s.ctx, name)
	s.ErrorIs(err, api.ErrSchematicNotFound)

	s.Require().NoError(s.store.StoreSchematic(s.ctx, name, []byte("v1")))
	s.Require().NoError(s.store.StoreSchematic(s.ctx, name, []byte("v2")))

	data, err := s.store.GetSchematic(s.ctx, name)
	s.Require().NoError(err)
	s.Equal([]byte("v2"), data, "storing under an existing name replaces it")
}
