package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/atomi7e/att-system-pet/apps/api/echo"
	"github.com/atomi7e/att-system-pet/core"
	"github.com/atomi7e/att-system-pet/core/access"
	"github.com/atomi7e/att-system-pet/core/attendance"
	"github.com/atomi7e/att-system-pet/core/school"
	"github.com/atomi7e/att-system-pet/core/teacher"
	"github.com/atomi7e/att-system-pet/core/user"
	emailsvc "github.com/atomi7e/att-system-pet/services/email"
	logsvc "github.com/atomi7e/att-system-pet/services/logger"
	"github.com/atomi7e/att-system-pet/storage/database"
	pgrepos "github.com/atomi7e/att-system-pet/storage/database/postgres"
)

const shutdownTimeout = 20 * time.Second

func main() {
	// =========================================================================
	// Set up Dependencies

	std := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	var logger core.Logger
	if core.Conf.Debug {
		logger = logsvc.NewConsoleLogger(std)
	} else {
		logger = logsvc.NewRollbarLogger(std, core.Conf)
	}

	db, err := setUpDB()
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}

	usrSvc := user.NewService(pgrepos.NewUserRepository(db), mailSvc)
	schoolSvc := school.NewService(pgrepos.NewSchoolRepository(db), usrSvc)
	teacherSvc := teacher.NewService(pgrepos.NewTeacherRepository(db), usrSvc, mailSvc)
	attSvc := attendance.NewService(pgrepos.NewAttendanceRepository(db), schoolSvc)
	accessSvc := access.NewService(schoolSvc, teacherSvc)

	// =========================================================================
	// Start API Service

	logger.Info(fmt.Sprintf("%s initializing : env %q", core.Conf.AppName, core.Conf.Env))
	defer logger.Info("Application stopped")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(
		&echoapi.Options{
			Address:        core.Conf.Address(),
			Logger:         logger,
			UserSvc:        usrSvc,
			SchoolSvc:      schoolSvc,
			TeacherSvc:     teacherSvc,
			AttendanceSvc:  attSvc,
			AccessSvc:      accessSvc,
			SignalShutdown: func() { shutdown <- syscall.SIGTERM },
		},
	)

	go server.Start()

	// =========================================================================
	// Shutdown

	sig := <-shutdown
	logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

	// give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err = server.Stop(ctx); err != nil {
		logger.Fatal(fmt.Sprintf("could not stop server gracefully: %v", err), err)
	}
}

func setUpDB() (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(core.Conf); err != nil {
		return nil, err
	}

	db, err := database.Open(core.Conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
