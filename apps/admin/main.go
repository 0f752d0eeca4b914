package main

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/audit"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/student"
	clipboardsvc "github.com/trezcool/registrar/services/clipboard"
	emailsvc "github.com/trezcool/registrar/services/email"
	logsvc "github.com/trezcool/registrar/services/logger"
	"github.com/trezcool/registrar/services/schoolapi"
	"github.com/trezcool/registrar/storage/database"
	inmemdb "github.com/trezcool/registrar/storage/database/inmem"
	sqlxrepos "github.com/trezcool/registrar/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)

	// the journal is process local without a database
	var auditRepo audit.Repository
	if conf.Database.Enabled() {
		db, err := database.Open(conf)
		if err != nil {
			logger.Fatal("opening database", err)
		}
		defer db.Close()
		auditRepo = sqlxrepos.NewAuditRepository(db)
	} else {
		auditRepo = inmemdb.NewAuditRepository(inmemdb.Open())
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	student.InitValidators(validate, translator)

	core.ParseEmailTemplates(logger)
	mailSvc := emailsvc.NewService(conf, log.New(os.Stdout, "MAIL : ", log.LstdFlags), logger)

	// start CLI
	cli := &commandLine{
		conf:       conf,
		logger:     logger,
		api:        schoolapi.NewClient(conf.API, logger),
		audit:      audit.NewService(auditRepo, logger),
		notifier:   enrollment.NewSummaryNotifier(mailSvc, conf.Enrollment.OperatorEmail),
		clip:       clipboardsvc.Available(),
		validate:   validate,
		translator: translator,
		in:         os.Stdin,
		out:        os.Stdout,
	}
	err := cli.run(os.Args)
	emailsvc.Wait(mailSvc)
	logger.Close()
	if err != nil {
		if err != errHelp {
			log.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
