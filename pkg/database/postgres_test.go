package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Oliskey-School/School-app--sub008/pkg/config"
)

func TestDSN(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.DatabaseConfig
		want string
	}{
		{
			name: "full",
			cfg:  config.DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "school_timetable", SSLMode: "disable"},
			want: "host=db port=5433 user=u password=p dbname=school_timetable sslmode=disable application_name=timetable-api connect_timeout=5",
		},
		{
			name: "quoted password",
			cfg:  config.DatabaseConfig{Host: "db", User: "u", Password: `it's a s\cret`, Name: "school_timetable"},
			want: `host=db user=u password='it\'s a s\\cret' dbname=school_timetable application_name=timetable-api connect_timeout=5`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DSN(tc.cfg))
		})
	}
}
