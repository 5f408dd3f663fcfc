package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/timesheet/internal/dbx"
	"github.com/dmitrijs2005/timesheet/internal/server/repositories/exports"
	"github.com/dmitrijs2005/timesheet/internal/server/repositories/identities"
	"github.com/dmitrijs2005/timesheet/internal/server/repositories/intents"
	"github.com/dmitrijs2005/timesheet/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/timesheet/internal/server/repositories/timeentries"
	"github.com/dmitrijs2005/timesheet/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX so services can use
// the same code inside and outside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Identities(db dbx.DBTX) identities.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	TimeEntries(db dbx.DBTX) timeentries.Repository
	Intents(db dbx.DBTX) intents.Repository
	Exports(db dbx.DBTX) exports.Repository
}
