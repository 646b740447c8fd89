package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

const (
	ServiceHTTP      = "http"
	ServiceInvest    = "invest"
	ServiceScheduler = "scheduler"
	ServiceExecutor  = "executor"
)

func RegisterMetrics(services []string, registry *prometheus.Registry, logger *logrus.Logger) {
	registerIfNotExists(collectors.NewGoCollector(), "go_collector", registry, logger)
	registerIfNotExists(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), "process_collector", registry, logger)

	for _, service := range services {
		switch service {
		case ServiceHTTP:
			registerIfNotExists(httpRequestsTotal, "http_requests_total", registry, logger)
			registerIfNotExists(httpRequestDuration, "http_request_duration", registry, logger)
			registerIfNotExists(httpActiveRequests, "http_active_requests", registry, logger)
		case ServiceInvest:
			registerIfNotExists(investOperationsTotal, "invest_operations_total", registry, logger)
			registerIfNotExists(investOperationDuration, "invest_operation_duration", registry, logger)
		case ServiceScheduler:
			registerIfNotExists(schedulerEnqueuedTotal, "scheduler_enqueued_total", registry, logger)
			registerIfNotExists(schedulerDueJobs, "scheduler_due_jobs", registry, logger)
			registerIfNotExists(schedulerCompletedTotal, "scheduler_completed_total", registry, logger)
		case ServiceExecutor:
			registerIfNotExists(executorExecutionsTotal, "executor_executions_total", registry, logger)
			registerIfNotExists(executorExecutionDuration, "executor_execution_duration", registry, logger)
			registerIfNotExists(executorLastExecutionTimestamp, "executor_last_execution_timestamp", registry, logger)
		default:
			logger.Warnf("Unknown service type for metrics registration: %s", service)
		}
	}
}

func registerIfNotExists(collector prometheus.Collector, name string, registry *prometheus.Registry, logger *logrus.Logger) {
	if err := registry.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if !errors.As(err, &alreadyRegErr) {
			logger.Errorf("Failed to register %s: %v", name, err)
		}
	}
}
