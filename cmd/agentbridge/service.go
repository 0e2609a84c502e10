package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/flemzord/agentbridge/pkg/app"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// program adapts an app.Instance to the system service manager.
type program struct {
	params app.RunParams
	inst   *app.Instance
}

func (p *program) Start(_ service.Service) error {
	inst, err := app.New(context.Background(), p.params)
	if err != nil {
		return err
	}
	if err := inst.Start(); err != nil {
		inst.Stop()
		return err
	}
	p.inst = inst
	return nil
}

func (p *program) Stop(_ service.Service) error {
	if p.inst != nil {
		p.inst.Stop()
		p.inst = nil
	}
	return nil
}

func newService(cfgPath string) (service.Service, error) {
	args := []string{"service", "run"}
	if cfgPath != "" {
		abs, err := filepath.Abs(cfgPath)
		if err != nil {
			return nil, err
		}
		cfgPath = abs
		args = append(args, "--config", cfgPath)
	}
	svcCfg := &service.Config{
		Name:        "agentbridge",
		DisplayName: "agentbridge",
		Description: "WebSocket gateway for tool-using LLM agents",
		Arguments:   args,
		Option:      service.KeyValue{"UserService": true},
	}
	return service.New(&program{params: runParams(cfgPath)}, svcCfg)
}

func serviceCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage agentbridge as a system service",
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to configuration file")

	for _, action := range service.ControlAction {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the agentbridge service", action),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, err := newService(cfgPath)
				if err != nil {
					return err
				}
				if err := service.Control(svc, action); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", action)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:    "run",
		Short:  "Run under the service manager",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			svc, err := newService(cfgPath)
			if err != nil {
				return err
			}
			return svc.Run()
		},
	})
	return cmd
}
