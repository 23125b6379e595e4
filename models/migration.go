package models

import (
	"log"

	"bitbucket.org/mmdatafocus/royalty_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Label{},
		&KontorReport{}, &BelieveReport{},
		&UnlinkedReport{}, &UnlinkedReportDetail{},
		&ReportImportJob{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
