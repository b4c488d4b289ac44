package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/gewnthar/sanctions/database"
	"github.com/gewnthar/sanctions/models"
)

var (
	entryMaria = models.WatchlistEntry{
		Source:    models.SourceSDNTreasury,
		Type:      models.SDNTypeIndividual,
		Name:      "Maria Giuseppe",
		Addresses: "123 Main Street, Springfield, US",
		AltNames:  "Giuseppa, Maria",
		IDs:       "US, Passport, 1234",
	}
	entryAcme = models.WatchlistEntry{
		Source:    models.SourceSDNTreasury,
		Type:      "Entity",
		Name:      "ACME Exports Ltd.",
		Addresses: "1 Harbour Rd, Limassol, CY; 4 Quay St, Valletta, MT",
	}
)

type FallbackImporterSuite struct {
	suite.Suite
	ctx      context.Context
	store    *database.SnapshotStore
	importer *FallbackImporter
	clock    time.Time
}

func TestFallbackImporterSuite(t *testing.T) {
	suite.Run(t, new(FallbackImporterSuite))
}

func (s *FallbackImporterSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = newTestStore(s.T())
	s.importer = NewFallbackImporter(s.store)
	s.clock = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.importer.Now = func() time.Time {
		s.clock = s.clock.Add(time.Minute)
		return s.clock
	}
}

func (s *FallbackImporterSuite) statesByChecksum() map[string]models.ImportState {
	list, err := s.store.ListSnapshots(s.ctx)
	s.Require().NoError(err)
	out := map[string]models.ImportState{}
	for _, st := range list {
		out[st.FileChecksum] = st.ImportState
	}
	return out
}

func (s *FallbackImporterSuite) TestIngestIntoEmptyStore() {
	text := exportText(s.T(), entryMaria)

	snap, err := s.importer.Ingest(s.ctx, text)
	s.Require().NoError(err)
	s.Require().NotNil(snap)
	s.Equal(models.ImportStateCurrent, snap.ImportState)
	s.Equal(Checksum(text), snap.FileChecksum)
	s.Require().NotNil(snap.ImportTimestamp)

	current, err := s.store.CurrentSnapshot(s.ctx)
	s.Require().NoError(err)
	s.Equal(snap.ID, current.ID)
	s.Require().NotNil(current.ImportTimestamp)

	rows, err := s.store.CurrentRows(s.ctx, models.SourceSDNTreasury, models.SDNTypeIndividual)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal("giuseppa giuseppe maria", rows[0].Names)
	s.Equal("123 main springfield street us", rows[0].Addresses)
	s.Equal("US", rows[0].Countries)
}

func (s *FallbackImporterSuite) TestIngestSameContentTwice() {
	text := exportText(s.T(), entryMaria, entryAcme)

	first, err := s.importer.Ingest(s.ctx, text)
	s.Require().NoError(err)
	s.Require().NotNil(first)

	second, err := s.importer.Ingest(s.ctx, text)
	s.Require().NoError(err)
	s.Nil(second)

	list, err := s.store.ListSnapshots(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(models.ImportStateCurrent, list[0].ImportState)
	s.Equal(2, list[0].RowCount)
}

func (s *FallbackImporterSuite) TestIngestChangedContentRetiresPrevious() {
	a := exportText(s.T(), entryMaria)
	b := exportText(s.T(), entryMaria, entryAcme)
	c := exportText(s.T(), entryAcme)

	for _, text := range []string{a, b} {
		_, err := s.importer.Ingest(s.ctx, text)
		s.Require().NoError(err)
	}
	s.Equal(map[string]models.ImportState{
		Checksum(a): models.ImportStateDiscard,
		Checksum(b): models.ImportStateCurrent,
	}, s.statesByChecksum())

	_, err := s.importer.Ingest(s.ctx, c)
	s.Require().NoError(err)
	s.Equal(map[string]models.ImportState{
		Checksum(b): models.ImportStateDiscard,
		Checksum(c): models.ImportStateCurrent,
	}, s.statesByChecksum())
}

func (s *FallbackImporterSuite) TestShortRowsAndBareQuotesImport() {
	text := exportText(s.T(), entryMaria) +
		models.SourceSDNTreasury + ",Individual,Jane Roe\n" +
		models.SourceSDNTreasury + `,Individual,Abu "Ali" Ahmed,"Baghdad, IQ",,` + "\n"

	snap, err := s.importer.Ingest(s.ctx, text)
	s.Require().NoError(err)
	s.Require().NotNil(snap)

	rows, err := s.store.CurrentRows(s.ctx, models.SourceSDNTreasury, models.SDNTypeIndividual)
	s.Require().NoError(err)
	s.Require().Len(rows, 3)
	names := map[string]string{}
	for _, r := range rows {
		names[r.Names] = r.Addresses
	}
	s.Contains(names, "jane roe")
	s.Equal("", names["jane roe"])
	s.Contains(names, "abu ahmed ali")
}

func (s *FallbackImporterSuite) TestMalformedExportLeavesCurrentUntouched() {
	good := exportText(s.T(), entryMaria)
	_, err := s.importer.Ingest(s.ctx, good)
	s.Require().NoError(err)

	_, err = s.importer.Ingest(s.ctx, "source,type,name\nSDN,Individual,Nobody\n")
	s.Require().Error(err)

	s.Equal(map[string]models.ImportState{
		Checksum(good): models.ImportStateCurrent,
	}, s.statesByChecksum())
	rows, err := s.store.CurrentRows(s.ctx, models.SourceSDNTreasury, models.SDNTypeIndividual)
	s.Require().NoError(err)
	s.Len(rows, 1)
}

func (s *FallbackImporterSuite) TestEmptyInputFails() {
	_, err := s.importer.Ingest(s.ctx, "")
	s.Require().Error(err)
	s.Empty(s.statesByChecksum())
}

func TestBuildFallbackRows(t *testing.T) {
	rows := BuildFallbackRows([]models.WatchlistEntry{
		{
			Source:    models.SourceSDNTreasury,
			Type:      models.SDNTypeIndividual,
			Name:      "José  Müller-Lüdenscheidt",
			AltNames:  "Jose MULLER; J. M.",
			Addresses: "Calle 1, Madrid, ES; Hauptstraße 5, Berlin, DE",
			IDs:       "ES, Passport, X1; FR, National ID, 77",
		},
		{Name: ""},
	})
	require.Len(t, rows, 2)

	assert.Equal(t, "j jose ludenscheidt m muller", rows[0].Names)
	assert.Equal(t, "1 5 berlin calle de es hauptstrasse madrid", rows[0].Addresses)
	assert.Equal(t, "DE ES FR", rows[0].Countries)

	assert.Equal(t, models.FallbackRow{}, rows[1])
}

func TestChecksum(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Checksum(""))
	assert.Len(t, Checksum("x"), 64)
	assert.NotEqual(t, Checksum("a"), Checksum("b"))
}
